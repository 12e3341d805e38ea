package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"tgz2objects/internal/metrics"
	"tgz2objects/internal/report"
	"tgz2objects/internal/storage"

	"go.uber.org/zap"
)

// Pool extracts several archives concurrently. Entries of one archive are
// always handled by a single worker, in order.
type Pool struct {
	size      int
	config    Config
	srcClient storage.Client
	dstClient storage.Client
	report    report.Store
	metrics   *metrics.Collector
	logger    *zap.Logger
	failures  atomic.Int64
}

// NewPool creates a new worker pool
func NewPool(
	size int,
	config Config,
	srcClient storage.Client,
	dstClient storage.Client,
	reportStore report.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		size:      size,
		config:    config,
		srcClient: srcClient,
		dstClient: dstClient,
		report:    reportStore,
		metrics:   metricsCollector,
		logger:    logger,
	}
}

// Start starts the worker pool
func (p *Pool) Start(ctx context.Context, jobs <-chan Job, wg *sync.WaitGroup) {
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(ctx, i, jobs, wg)
	}
}

// Failures returns the number of archives that failed so far
func (p *Pool) Failures() int64 {
	return p.failures.Load()
}

func (p *Pool) worker(ctx context.Context, id int, jobs <-chan Job, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	processor := &TaskProcessor{
		config:    p.config,
		srcClient: p.srcClient,
		dstClient: p.dstClient,
		report:    p.report,
		metrics:   p.metrics,
		logger:    logger,
	}

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				logger.Debug("Worker finished - no more archives")
				return
			}

			if processor.Process(ctx, job) {
				p.failures.Add(1)
			}

		case <-ctx.Done():
			logger.Info("Worker stopped - context cancelled")
			return
		}
	}
}
