package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"tgz2objects/internal/archive/archivetest"
	"tgz2objects/internal/metrics"
	"tgz2objects/internal/report"
	"tgz2objects/internal/storage"
	"tgz2objects/internal/storage/storagetest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPool_ExtractsAllArchives(t *testing.T) {
	src := storagetest.NewMemoryClient()
	dst := storagetest.NewMemoryClient()

	jobs := make(chan Job, 3)
	for _, name := range []string{"one", "two", "bad"} {
		loc := storage.Location{Bucket: "src", Key: "incoming/" + name + ".tar.gz"}
		data := archivetest.TarGz(t,
			archivetest.File{Name: "docs/", Dir: true},
			archivetest.File{Name: "docs/readme.txt", Body: "archive " + name},
		)
		src.AddObject(loc, data)
		jobs <- Job{Source: loc, Size: int64(len(data))}
	}
	close(jobs)

	dst.BeforePut = func(ctx context.Context, loc storage.Location) error {
		if loc.Key == "out/bad/docs/readme.txt" {
			return errors.New("access denied")
		}
		return nil
	}

	store, err := report.NewSQLiteStore(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	defer store.Close()

	collector := metrics.New(prometheus.NewRegistry())
	collector.SetTotalCounts(3, 0)

	pool := NewPool(2, Config{
		Target:       storage.Location{Bucket: "dst", Key: "out"},
		ExtraRootDir: "basename",
		MaxTryTime:   1,
	}, src, dst, store, collector, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	pool.Start(context.Background(), jobs, &wg)
	wg.Wait()

	assert.Equal(t, int64(1), pool.Failures())
	assert.Equal(t, []string{
		"out/bad/docs/",
		"out/one/docs/",
		"out/one/docs/readme.txt",
		"out/two/docs/",
		"out/two/docs/readme.txt",
	}, dst.Keys("dst"))

	failed, err := store.ListFailedEntries()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "src/incoming/bad.tar.gz", failed[0].Archive)
	assert.Equal(t, 1, failed[0].Index)
	assert.Equal(t, "out/bad/docs/readme.txt", failed[0].Key)
	assert.Contains(t, failed[0].LastError, "access denied")

	entries, err := store.ListTaskEntries(failed[0].TaskID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, report.StatusMarker, entries[0].Status)
	assert.Equal(t, "out/bad/docs/", entries[0].Key)
	assert.NotEmpty(t, entries[0].ETag)

	status := collector.GetProgressTracker().GetStatus()
	assert.Equal(t, int64(3), status.CompletedArchives)
	assert.Equal(t, int64(1), status.FailedArchives)
}

func TestPool_StopsOnContextCancel(t *testing.T) {
	jobs := make(chan Job)
	ctx, cancel := context.WithCancel(context.Background())

	pool := NewPool(3, Config{}, storagetest.NewMemoryClient(), storagetest.NewMemoryClient(),
		nil, metrics.New(prometheus.NewRegistry()), zaptest.NewLogger(t))

	var wg sync.WaitGroup
	pool.Start(ctx, jobs, &wg)
	cancel()
	wg.Wait()

	assert.Zero(t, pool.Failures())
}
