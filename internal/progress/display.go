package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Display handles the progress display
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDisplay creates a new progress display writing to stdout
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      os.Stdout,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and waits for the final summary to be printed
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(d.out, strings.Join(d.generateDisplay(d.tracker.GetStatus()), "\n"))
		case <-d.stopCh:
			fmt.Fprintln(d.out, strings.Join(d.generateFinalDisplay(d.tracker.GetStatus()), "\n"))
			return
		}
	}
}

func (d *Display) generateDisplay(status Status) []string {
	lines := make([]string, 0, 16)

	lines = append(lines, "")
	lines = append(lines, "Archive extraction progress")
	lines = append(lines, strings.Repeat("=", 51))

	archiveProgress := d.tracker.GetProgressPercent()
	lines = append(lines, fmt.Sprintf("Archives: %d/%d (%d failed)",
		status.CompletedArchives, status.TotalArchives, status.FailedArchives))
	lines = append(lines, "    "+generateProgressBar(archiveProgress, 40))

	bytesProgress := d.tracker.GetBytesProgressPercent()
	lines = append(lines, fmt.Sprintf("Archive data: %s/%s",
		FormatBytes(status.ArchiveBytes), FormatBytes(status.TotalBytes)))
	lines = append(lines, "    "+generateProgressBar(bytesProgress, 40))

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  uploaded: %d (%s)", status.UploadedEntries, FormatBytes(status.UploadedBytes)))
	lines = append(lines, fmt.Sprintf("  markers:  %d", status.MarkerEntries))
	lines = append(lines, fmt.Sprintf("  replayed: %d", status.ReplayedEntries))
	lines = append(lines, fmt.Sprintf("  failed:   %d", status.FailedEntries))

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  current speed: %s", FormatSpeed(status.CurrentSpeed)))
	lines = append(lines, fmt.Sprintf("  average speed: %s", FormatSpeed(status.AverageSpeed)))
	lines = append(lines, fmt.Sprintf("  elapsed: %s, remaining: %s",
		FormatDuration(time.Since(status.StartTime)), FormatDuration(status.ETA)))
	lines = append(lines, "")

	return lines
}

func (d *Display) generateFinalDisplay(status Status) []string {
	return []string{
		"",
		"Extraction finished",
		strings.Repeat("=", 51),
		fmt.Sprintf("Archives: %d (%d failed)", status.CompletedArchives, status.FailedArchives),
		fmt.Sprintf("Entries uploaded: %d (%s)", status.UploadedEntries, FormatBytes(status.UploadedBytes)),
		fmt.Sprintf("Markers: %d, replayed: %d, failed: %d",
			status.MarkerEntries, status.ReplayedEntries, status.FailedEntries),
		fmt.Sprintf("Total time: %s", FormatDuration(time.Since(status.StartTime))),
		fmt.Sprintf("Average speed: %s", FormatSpeed(status.AverageSpeed)),
		"",
	}
}

func generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %.1f%%", bar, percent)
}

// IsTerminalSupported checks if stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
