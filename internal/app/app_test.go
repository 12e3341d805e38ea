package app

import (
	"context"
	"path/filepath"
	"testing"

	"tgz2objects/internal/archive/archivetest"
	"tgz2objects/internal/config"
	"tgz2objects/internal/report"
	"tgz2objects/internal/storage"
	"tgz2objects/internal/storage/storagetest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Task.Bucket = "backups"
	cfg.Task.TargetBucket = "restored"
	cfg.Task.TargetPrefix = "out"
	cfg.Task.RetryBackoffMs = 0
	cfg.Task.ShowProgress = false
	cfg.Task.MetricsAddr = ""
	cfg.Task.Report = ""
	return cfg
}

func TestIsArchiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"a.tar.gz", true},
		{"dir/a.TGZ", true},
		{"a.tar", true},
		{"a.gz", false},
		{"a.zip", false},
		{"tar", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsArchiveKey(tt.key))
		})
	}
}

func TestExtractor_Run_Prefix(t *testing.T) {
	src := storagetest.NewMemoryClient()
	dst := storagetest.NewMemoryClient()

	src.AddObject(storage.Location{Bucket: "backups", Key: "nightly/web.tar.gz"},
		archivetest.TarGz(t, archivetest.File{Name: "index.html", Body: "<html></html>"}))
	src.AddObject(storage.Location{Bucket: "backups", Key: "nightly/db.tgz"},
		archivetest.TarGz(t, archivetest.File{Name: "dump.sql", Body: "select 1;"}))
	src.AddObject(storage.Location{Bucket: "backups", Key: "nightly/notes.txt"}, []byte("not an archive"))
	src.AddObject(storage.Location{Bucket: "backups", Key: "weekly/all.tar"},
		archivetest.Tar(t, archivetest.File{Name: "skip.txt", Body: "x"}))

	cfg := testConfig()
	cfg.Task.Prefix = "nightly/"
	cfg.Task.ExtraRootDir = "basename"

	store, err := report.NewSQLiteStore(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)

	extractor := newExtractor(cfg, zaptest.NewLogger(t), src, dst, store, prometheus.NewRegistry())
	defer extractor.Close()

	require.NoError(t, extractor.Run(context.Background()))

	assert.Equal(t, []string{"out/db/dump.sql", "out/web/index.html"}, dst.Keys("restored"))

	body, ok := dst.Object(storage.Location{Bucket: "restored", Key: "out/web/index.html"})
	require.True(t, ok)
	assert.Equal(t, "<html></html>", string(body))

	failed, err := store.ListFailedEntries()
	require.NoError(t, err)
	assert.Empty(t, failed)

	status := extractor.metrics.GetProgressTracker().GetStatus()
	assert.Equal(t, int64(2), status.CompletedArchives)
	assert.Equal(t, int64(2), status.UploadedEntries)
}

func TestExtractor_Run_SingleArchiveFails(t *testing.T) {
	src := storagetest.NewMemoryClient()
	dst := storagetest.NewMemoryClient()
	src.AddObject(storage.Location{Bucket: "backups", Key: "broken.tar.gz"}, []byte{0x1f, 0x8b, 0x00, 0x01})

	cfg := testConfig()
	cfg.Task.Key = "broken.tar.gz"
	cfg.Task.MaxTryTime = 2

	extractor := newExtractor(cfg, zaptest.NewLogger(t), src, dst, nil, prometheus.NewRegistry())
	defer extractor.Close()

	err := extractor.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 archives failed")
	assert.Equal(t, 2, src.GetCount())
	assert.Empty(t, dst.Keys("restored"))
}

func TestExtractor_Run_MissingArchive(t *testing.T) {
	cfg := testConfig()
	cfg.Task.Key = "missing.tar.gz"

	extractor := newExtractor(cfg, zaptest.NewLogger(t),
		storagetest.NewMemoryClient(), storagetest.NewMemoryClient(), nil, prometheus.NewRegistry())

	err := extractor.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.Contains(t, err.Error(), "failed to list archives")
}

func TestExtractor_Run_DryRun(t *testing.T) {
	src := storagetest.NewMemoryClient()
	src.AddObject(storage.Location{Bucket: "backups", Key: "a.tar"},
		archivetest.Tar(t, archivetest.File{Name: "a.txt", Body: "aaa"}))

	cfg := testConfig()
	cfg.Task.Key = "a.tar"
	cfg.Task.DryRun = true

	extractor := newExtractor(cfg, zaptest.NewLogger(t), src, storage.NewDiscardClient(), nil, prometheus.NewRegistry())

	require.NoError(t, extractor.Run(context.Background()))
	assert.Equal(t, int64(3), extractor.metrics.GetProgressTracker().GetStatus().UploadedBytes)
}

func TestExtractor_Run_Canceled(t *testing.T) {
	src := storagetest.NewMemoryClient()
	src.AddObject(storage.Location{Bucket: "backups", Key: "a.tar"},
		archivetest.Tar(t, archivetest.File{Name: "a.txt", Body: "aaa"}))

	cfg := testConfig()
	cfg.Task.Key = "a.tar"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := newExtractor(cfg, zaptest.NewLogger(t), src, storagetest.NewMemoryClient(), nil, prometheus.NewRegistry())

	err := extractor.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
