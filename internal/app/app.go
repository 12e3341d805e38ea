package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tgz2objects/internal/config"
	"tgz2objects/internal/metrics"
	"tgz2objects/internal/progress"
	"tgz2objects/internal/report"
	"tgz2objects/internal/storage"
	"tgz2objects/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Extractor runs the extraction of one archive or of every archive under a
// prefix
type Extractor struct {
	cfg       *config.Config
	logger    *zap.Logger
	srcClient storage.Client
	dstClient storage.Client
	report    report.Store
	metrics   *metrics.Collector
	workers   *worker.Pool
}

// New creates a new extractor instance
func New(cfg *config.Config, logger *zap.Logger) (*Extractor, error) {
	srcClient, err := storage.New(storageConfig(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	var dstClient storage.Client
	if cfg.Task.DryRun {
		dstClient = storage.NewDiscardClient()
	} else {
		dstClient, err = storage.New(storageConfig(cfg.Target))
		if err != nil {
			return nil, fmt.Errorf("failed to create destination client: %w", err)
		}
	}

	var reportStore report.Store
	if cfg.Task.Report != "" {
		reportStore, err = report.NewSQLiteStore(cfg.Task.Report)
		if err != nil {
			return nil, fmt.Errorf("failed to create report store: %w", err)
		}
	}

	return newExtractor(cfg, logger, srcClient, dstClient, reportStore, prometheus.NewRegistry()), nil
}

func newExtractor(
	cfg *config.Config,
	logger *zap.Logger,
	srcClient storage.Client,
	dstClient storage.Client,
	reportStore report.Store,
	registry *prometheus.Registry,
) *Extractor {
	metricsCollector := metrics.New(registry)

	workerPool := worker.NewPool(cfg.Task.Concurrency, worker.Config{
		Target: storage.Location{
			Bucket: cfg.Task.TargetBucket,
			Region: cfg.Task.TargetRegion,
			Key:    cfg.Task.TargetPrefix,
		},
		ExtraRootDir:   cfg.Task.ExtraRootDir,
		MaxTryTime:     cfg.Task.MaxTryTime,
		RetryBackoffMs: cfg.Task.RetryBackoffMs,
	}, srcClient, dstClient, reportStore, metricsCollector, logger)

	return &Extractor{
		cfg:       cfg,
		logger:    logger,
		srcClient: srcClient,
		dstClient: dstClient,
		report:    reportStore,
		metrics:   metricsCollector,
		workers:   workerPool,
	}
}

func storageConfig(sc config.StorageConfig) storage.Config {
	return storage.Config{
		Backend:   sc.Backend,
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		Secure:    sc.Secure,
		Region:    sc.Region,
		PathStyle: sc.PathStyle,
	}
}

// Run extracts every scheduled archive. It fails if any archive failed.
func (e *Extractor) Run(ctx context.Context) error {
	task := e.cfg.Task
	e.logger.Info("Starting extraction",
		zap.String("bucket", task.Bucket),
		zap.String("key", task.Key),
		zap.String("prefix", task.Prefix),
		zap.String("target_bucket", task.TargetBucket),
		zap.String("target_prefix", task.TargetPrefix),
		zap.Int("concurrency", task.Concurrency),
		zap.Bool("dry_run", task.DryRun),
	)

	if task.MetricsAddr != "" {
		go func() {
			if err := e.metrics.StartServer(task.MetricsAddr); err != nil {
				e.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	source := storage.Location{Bucket: task.Bucket, Region: task.Region, Key: task.Key}
	lister := &ArchiveLister{
		client: e.srcClient,
		logger: e.logger,
	}

	var progressDisplay *progress.Display
	if task.ShowProgress && progress.IsTerminalSupported() {
		totalArchives, totalBytes, err := lister.CountArchives(ctx, source, task.Prefix)
		if err != nil {
			e.logger.Warn("Failed to count archives, progress tracking may be inaccurate", zap.Error(err))
		} else {
			e.metrics.SetTotalCounts(totalArchives, totalBytes)
			e.logger.Info("Archive counting completed",
				zap.Int64("total_archives", totalArchives),
				zap.String("total_size", progress.FormatBytes(totalBytes)),
			)
			progressDisplay = progress.NewDisplay(e.metrics.GetProgressTracker(), 2*time.Second)
			progressDisplay.Start()
		}
	} else {
		e.logger.Debug("Progress display disabled")
	}

	jobs := make(chan worker.Job, task.Concurrency*2)

	var wg sync.WaitGroup
	e.workers.Start(ctx, jobs, &wg)

	scheduled, listErr := lister.ListAndEnqueue(ctx, source, task.Prefix, jobs)
	close(jobs)
	wg.Wait()

	if progressDisplay != nil {
		progressDisplay.Stop()
	}

	if listErr != nil {
		return fmt.Errorf("failed to list archives: %w", listErr)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("extraction interrupted: %w", context.Cause(ctx))
	}
	if failures := e.workers.Failures(); failures > 0 {
		return fmt.Errorf("%d of %d archives failed", failures, scheduled)
	}

	e.logger.Info("Extraction completed", zap.Int64("archives", scheduled))
	return nil
}

// Close cleans up resources
func (e *Extractor) Close() error {
	if e.report != nil {
		return e.report.Close()
	}
	return nil
}
