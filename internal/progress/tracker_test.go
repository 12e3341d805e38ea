package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Counters(t *testing.T) {
	tracker := NewTracker()
	tracker.SetTotal(4, 1000)

	tracker.AddUploaded(100)
	tracker.AddUploaded(50)
	tracker.AddMarker()
	tracker.AddReplayed()
	tracker.AddFailed()
	tracker.AddArchive(250, false)
	tracker.AddArchive(250, true)

	status := tracker.GetStatus()
	assert.Equal(t, int64(2), status.UploadedEntries)
	assert.Equal(t, int64(150), status.UploadedBytes)
	assert.Equal(t, int64(1), status.MarkerEntries)
	assert.Equal(t, int64(1), status.ReplayedEntries)
	assert.Equal(t, int64(1), status.FailedEntries)
	assert.Equal(t, int64(2), status.CompletedArchives)
	assert.Equal(t, int64(1), status.FailedArchives)
	assert.Equal(t, int64(500), status.ArchiveBytes)

	assert.InDelta(t, 50.0, tracker.GetProgressPercent(), 0.001)
	assert.InDelta(t, 50.0, tracker.GetBytesProgressPercent(), 0.001)
}

func TestTracker_NoTotals(t *testing.T) {
	tracker := NewTracker()
	tracker.AddArchive(10, false)

	assert.Zero(t, tracker.GetProgressPercent())
	assert.Zero(t, tracker.GetBytesProgressPercent())
	assert.Zero(t, tracker.GetStatus().ETA)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "5.0 GB", FormatBytes(5*1024*1024*1024))

	assert.Equal(t, "10.0 B/s", FormatSpeed(10))
	assert.Equal(t, "1.0 MB/s", FormatSpeed(1024*1024))

	assert.Equal(t, "calculating...", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h0m1s", FormatDuration(time.Hour+time.Second))
}

func TestGenerateProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░] 50.0%", generateProgressBar(50, 10))
	assert.Equal(t, "[██████████] 100.0%", generateProgressBar(150, 10))
	assert.Equal(t, "[░░░░░░░░░░] 0.0%", generateProgressBar(-1, 10))
}

func TestDisplay_StopPrintsSummary(t *testing.T) {
	tracker := NewTracker()
	tracker.AddUploaded(2048)
	tracker.AddArchive(100, false)

	var out bytes.Buffer
	display := NewDisplay(tracker, time.Hour)
	display.out = &out

	display.Start()
	display.Stop()

	summary := out.String()
	require.True(t, strings.Contains(summary, "Extraction finished"))
	assert.Contains(t, summary, "Archives: 1 (0 failed)")
	assert.Contains(t, summary, "Entries uploaded: 1 (2.0 KB)")
}
