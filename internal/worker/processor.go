package worker

import (
	"context"
	"errors"
	"time"

	"tgz2objects/internal/metrics"
	"tgz2objects/internal/report"
	"tgz2objects/internal/storage"

	"go.uber.org/zap"
)

// TaskProcessor extracts the archives handed to one worker
type TaskProcessor struct {
	config    Config
	srcClient storage.Client
	dstClient storage.Client
	report    report.Store
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// Process extracts a single archive and reports whether it failed
func (p *TaskProcessor) Process(ctx context.Context, job Job) bool {
	startTime := time.Now()

	task := NewTask(TaskConfig{
		Source:       job.Source,
		Target:       p.config.Target,
		ExtraRootDir: p.config.ExtraRootDir,
		MaxTryTime:   p.config.MaxTryTime,
		RetryBackoff: time.Duration(p.config.RetryBackoffMs) * time.Millisecond,
	}, p.srcClient, p.dstClient, p.metrics, p.logger)

	p.metrics.TaskStarted()
	results := task.Run(ctx)
	failed := task.Err() != nil || results.Err() != nil
	p.metrics.TaskFinished(job.Size, failed)

	p.saveReport(task, job, results)

	if failed {
		p.logger.Error("Archive failed",
			zap.String("task_id", task.ID),
			zap.String("archive", job.Source.String()),
			zap.Int("records", results.Len()),
			zap.Error(firstError(task.Err(), results.Err())),
		)
		return true
	}

	p.logger.Info("Archive completed",
		zap.String("task_id", task.ID),
		zap.String("archive", job.Source.String()),
		zap.String("prefix", task.Prefix()),
		zap.Int("entries", results.Len()),
		zap.Duration("duration", time.Since(startTime)),
	)
	return false
}

func (p *TaskProcessor) saveReport(task *Task, job Job, results *Results) {
	if p.report == nil {
		return
	}

	records := results.Records()
	entries := make([]*report.EntryRecord, 0, len(records))
	for _, rec := range records {
		entry := &report.EntryRecord{
			TaskID:  task.ID,
			Archive: job.Source.String(),
			Index:   rec.Index,
			Name:    rec.Entry.Name,
			Size:    rec.Entry.Size,
			Key:     entryKey(task.Prefix(), rec.Entry),
			Status:  report.StatusUploaded,
		}
		switch {
		case rec.Failed():
			entry.Status = report.StatusFailed
			entry.LastError = rec.Err.Error()
		case rec.Entry.IsHeaderOnly():
			entry.Status = report.StatusMarker
			entry.ETag = rec.Response.ETag
		default:
			entry.ETag = rec.Response.ETag
		}
		entries = append(entries, entry)
	}

	if err := p.report.SaveEntries(entries); err != nil {
		if errors.Is(err, report.ErrStoreClosed) {
			p.logger.Warn("Cannot save report - store is closed",
				zap.String("task_id", task.ID),
				zap.String("archive", job.Source.String()))
			return
		}
		p.logger.Error("Failed to save report",
			zap.String("task_id", task.ID),
			zap.String("archive", job.Source.String()),
			zap.Error(err))
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
