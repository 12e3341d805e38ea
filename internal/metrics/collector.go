package metrics

import (
	"net/http"
	"time"

	"tgz2objects/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Entry status label values
const (
	StatusUploaded = "uploaded"
	StatusMarker   = "marker"
	StatusReplayed = "replayed"
	StatusFailed   = "failed"
)

// Collector collects and exposes metrics
type Collector struct {
	registry        *prometheus.Registry
	entriesTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	attemptsTotal   *prometheus.CounterVec
	inflightTasks   prometheus.Gauge
	entryDuration   prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a collector registered on registry
func New(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extract_entries_total",
				Help: "Total number of archive entries processed",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "extract_bytes_total",
				Help: "Total entry bytes uploaded",
			},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extract_attempts_total",
				Help: "Total number of full-archive attempts",
			},
			[]string{"result"},
		),
		inflightTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "extract_inflight_tasks",
				Help: "Number of archives currently being extracted",
			},
		),
		entryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extract_entry_duration_seconds",
				Help:    "Time taken to upload one entry",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	registry.MustRegister(c.entriesTotal)
	registry.MustRegister(c.bytesTotal)
	registry.MustRegister(c.attemptsTotal)
	registry.MustRegister(c.inflightTasks)
	registry.MustRegister(c.entryDuration)

	return c
}

// IncUploaded counts an uploaded entry and its bytes
func (c *Collector) IncUploaded(bytes int64) {
	c.entriesTotal.WithLabelValues(StatusUploaded).Inc()
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddUploaded(bytes)
}

// IncMarker counts a directory or link entry stored as a zero-length marker
func (c *Collector) IncMarker() {
	c.entriesTotal.WithLabelValues(StatusMarker).Inc()
	c.progressTracker.AddMarker()
}

// IncReplayed counts an entry discarded during a retry
func (c *Collector) IncReplayed() {
	c.entriesTotal.WithLabelValues(StatusReplayed).Inc()
	c.progressTracker.AddReplayed()
}

// IncFailed counts a failed entry
func (c *Collector) IncFailed() {
	c.entriesTotal.WithLabelValues(StatusFailed).Inc()
	c.progressTracker.AddFailed()
}

// IncAttempt counts a finished attempt by result
func (c *Collector) IncAttempt(result string) {
	c.attemptsTotal.WithLabelValues(result).Inc()
}

// TaskStarted marks an archive as in flight
func (c *Collector) TaskStarted() {
	c.inflightTasks.Inc()
}

// TaskFinished marks an archive as done
func (c *Collector) TaskFinished(archiveBytes int64, failed bool) {
	c.inflightTasks.Dec()
	c.progressTracker.AddArchive(archiveBytes, failed)
}

// ObserveDuration observes the upload duration of one entry
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.entryDuration.Observe(duration.Seconds())
}

// StartServer serves the registry on addr until the server fails
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotalCounts sets the totals for progress tracking
func (c *Collector) SetTotalCounts(archives, bytes int64) {
	c.progressTracker.SetTotal(archives, bytes)
}
