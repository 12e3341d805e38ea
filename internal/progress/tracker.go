package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current extraction status
type Status struct {
	TotalArchives     int64         // archives scheduled
	CompletedArchives int64         // archives finished, successfully or not
	FailedArchives    int64         // archives whose results contain an error
	UploadedEntries   int64         // entries written to the destination
	MarkerEntries     int64         // zero-length markers for directories and links
	ReplayedEntries   int64         // entries re-read and discarded on a retry
	FailedEntries     int64         // entries that ended an attempt
	UploadedBytes     int64         // entry bytes written to the destination
	StartTime         time.Time     // start of the run
	LastUpdateTime    time.Time     // last counter change
	CurrentSpeed      float64       // upload speed over the last 5s (bytes/second)
	AverageSpeed      float64       // upload speed since start (bytes/second)
	ETA               time.Duration // estimate based on archive bytes
	TotalBytes        int64         // compressed size of all scheduled archives
	ArchiveBytes      int64         // compressed size of completed archives
}

// Tracker tracks extraction progress
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		status: Status{
			StartTime:      time.Now(),
			LastUpdateTime: time.Now(),
		},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
	}
}

// SetTotal sets the number of archives and their compressed size
func (t *Tracker) SetTotal(archives, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalArchives = archives
	t.status.TotalBytes = bytes
}

// AddUploaded records an uploaded entry
func (t *Tracker) AddUploaded(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.UploadedEntries++
	t.status.UploadedBytes += bytes
	t.updateSpeed(bytes)
}

// AddMarker records a directory or link entry stored as a marker object
func (t *Tracker) AddMarker() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.MarkerEntries++
	t.status.LastUpdateTime = time.Now()
}

// AddReplayed records an entry discarded during a retry
func (t *Tracker) AddReplayed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.ReplayedEntries++
	t.status.LastUpdateTime = time.Now()
}

// AddFailed records a failed entry
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedEntries++
	t.status.LastUpdateTime = time.Now()
}

// AddArchive records a finished archive of the given compressed size
func (t *Tracker) AddArchive(bytes int64, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CompletedArchives++
	t.status.ArchiveBytes += bytes
	if failed {
		t.status.FailedArchives++
	}
	t.calculateETA()
	t.status.LastUpdateTime = time.Now()
}

// updateSpeed must be called with the lock held
func (t *Tracker) updateSpeed(bytes int64) {
	now := time.Now()

	t.speedSamples = append(t.speedSamples, speedSample{
		timestamp: now,
		bytes:     bytes,
	})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	t.calculateCurrentSpeed(now)
	t.calculateAverageSpeed(now)
	t.status.LastUpdateTime = now
}

func (t *Tracker) calculateCurrentSpeed(now time.Time) {
	if len(t.speedSamples) < 2 {
		t.status.CurrentSpeed = 0
		return
	}

	cutoff := now.Add(-5 * time.Second)
	var recentBytes int64
	var firstSample *speedSample

	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := &t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentBytes += sample.bytes
		firstSample = sample
	}

	if firstSample != nil {
		if d := now.Sub(firstSample.timestamp); d > 0 {
			t.status.CurrentSpeed = float64(recentBytes) / d.Seconds()
		}
	}
}

func (t *Tracker) calculateAverageSpeed(now time.Time) {
	elapsed := now.Sub(t.status.StartTime)
	if elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.UploadedBytes) / elapsed.Seconds()
	}
}

// calculateETA extrapolates from the compressed bytes of finished archives
func (t *Tracker) calculateETA() {
	if t.status.TotalBytes == 0 || t.status.ArchiveBytes == 0 {
		t.status.ETA = 0
		return
	}

	remaining := t.status.TotalBytes - t.status.ArchiveBytes
	if remaining <= 0 {
		t.status.ETA = 0
		return
	}

	elapsed := time.Since(t.status.StartTime)
	rate := float64(t.status.ArchiveBytes) / elapsed.Seconds()
	if rate <= 0 {
		t.status.ETA = 0
		return
	}
	t.status.ETA = time.Duration(float64(remaining)/rate) * time.Second
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the share of completed archives
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalArchives == 0 {
		return 0
	}

	return float64(t.status.CompletedArchives) / float64(t.status.TotalArchives) * 100
}

// GetBytesProgressPercent returns the share of completed archive bytes
func (t *Tracker) GetBytesProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalBytes == 0 {
		return 0
	}

	return float64(t.status.ArchiveBytes) / float64(t.status.TotalBytes) * 100
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	} else if bytesPerSecond < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "calculating..."
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
