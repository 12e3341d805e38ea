package worker

import (
	"context"
	"errors"
	"math"
	"time"

	"tgz2objects/internal/metrics"
	"tgz2objects/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is one archive scheduled for extraction
type Job struct {
	Source storage.Location
	Size   int64
}

// Config contains worker configuration shared by all tasks
type Config struct {
	Target         storage.Location
	ExtraRootDir   string
	MaxTryTime     int
	RetryBackoffMs int
}

// TaskConfig describes the extraction of one archive
type TaskConfig struct {
	Source       storage.Location
	Target       storage.Location // Key is the target prefix
	ExtraRootDir string
	MaxTryTime   int
	RetryBackoff time.Duration
}

// Task streams one archive from src and uploads every entry to dst.
// Run may be called once; Cancel may be called from any goroutine.
type Task struct {
	ID string

	cfg     TaskConfig
	prefix  string
	src     storage.Client
	dst     storage.Client
	metrics *metrics.Collector
	logger  *zap.Logger

	results *Results
	lastErr error

	token  context.Context
	cancel context.CancelCauseFunc
}

// NewTask creates a task. The destination prefix is derived here once.
func NewTask(cfg TaskConfig, src, dst storage.Client, metricsCollector *metrics.Collector, logger *zap.Logger) *Task {
	if cfg.MaxTryTime <= 0 {
		cfg.MaxTryTime = 3
	}

	id := uuid.New().String()
	token, cancel := context.WithCancelCause(context.Background())

	return &Task{
		ID:      id,
		cfg:     cfg,
		prefix:  DestinationPrefix(cfg.Target.Key, cfg.Source.Key, cfg.ExtraRootDir),
		src:     src,
		dst:     dst,
		metrics: metricsCollector,
		logger: logger.With(
			zap.String("task_id", id),
			zap.String("archive", cfg.Source.String()),
		),
		results: NewResults(),
		token:   token,
		cancel:  cancel,
	}
}

// Prefix returns the destination prefix entries are uploaded under
func (t *Task) Prefix() string {
	return t.prefix
}

// Results returns the accumulated records. Only read it after Run returned.
func (t *Task) Results() *Results {
	return t.results
}

// Err returns the error that ended the task, or nil if the last attempt
// succeeded. Unlike Results().Err() it also reports a task that was
// cancelled before it recorded anything.
func (t *Task) Err() error {
	return t.lastErr
}

// Run executes up to MaxTryTime attempts over the whole archive. Entries
// recorded as successful by an earlier attempt are skipped on replay.
// Cancellation and oversized entries stop the loop immediately. The
// returned results may contain an error record; callers must check them.
func (t *Task) Run(ctx context.Context) *Results {
	ctx, release := t.bind(ctx)
	defer release()

	startTime := time.Now()
	t.lastErr = nil

	for attempt := 1; attempt <= t.cfg.MaxTryTime; attempt++ {
		if cause := t.canceled(ctx); cause != nil {
			t.lastErr = cause
			t.logger.Warn("Task canceled, not starting attempt",
				zap.Int("attempt", attempt),
				zap.Error(cause),
			)
			break
		}
		t.results.DropFailed()

		err := t.runOnce(ctx)
		if err == nil {
			t.lastErr = nil
			t.metrics.IncAttempt("success")
			t.logger.Info("Archive extracted successfully",
				zap.Int("attempt", attempt),
				zap.Int("entries", t.results.Len()),
				zap.Duration("duration", time.Since(startTime)),
			)
			break
		}

		t.lastErr = err
		t.metrics.IncAttempt("failed")
		t.logger.Warn("Extraction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("completed_entries", t.results.Len()),
			zap.Error(err),
		)

		if cause := t.canceled(ctx); cause != nil {
			t.lastErr = cause
			t.logger.Warn("Task canceled, not retrying", zap.Error(cause))
			break
		}

		if !isRetriableError(err) {
			t.logger.Error("Extraction failed with a permanent error", zap.Error(err))
			break
		}

		if attempt < t.cfg.MaxTryTime {
			if cause := t.wait(ctx, t.calculateBackoff(attempt)); cause != nil {
				t.lastErr = cause
				break
			}
		}
	}

	if t.lastErr != nil {
		t.logger.Error("Archive extraction failed",
			zap.Int("attempts_allowed", t.cfg.MaxTryTime),
			zap.Error(t.lastErr),
		)
	}

	return t.results
}

func isRetriableError(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrSizeLimitExceeded) &&
		!errors.Is(err, ErrUnsafeEntryName)
}

func (t *Task) calculateBackoff(attempt int) time.Duration {
	return t.cfg.RetryBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
}
