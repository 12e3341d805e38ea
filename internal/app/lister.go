package app

import (
	"context"
	"fmt"
	"strings"

	"tgz2objects/internal/storage"
	"tgz2objects/internal/worker"

	"go.uber.org/zap"
)

var archiveExtensions = []string{".tar.gz", ".tgz", ".tar"}

// IsArchiveKey reports whether key names a tar or gzip-compressed tar archive
func IsArchiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ArchiveLister finds the archives to extract
type ArchiveLister struct {
	client storage.Client
	logger *zap.Logger
}

// ListAndEnqueue sends one job per archive. A single key is taken as is;
// with a prefix every archive below it is scheduled.
func (l *ArchiveLister) ListAndEnqueue(ctx context.Context, source storage.Location, prefix string, jobs chan<- worker.Job) (int64, error) {
	if source.Key != "" {
		return l.enqueueSingleArchive(ctx, source, jobs)
	}

	return l.enqueueArchives(ctx, source, prefix, jobs)
}

// CountArchives counts the archives and their compressed bytes
func (l *ArchiveLister) CountArchives(ctx context.Context, source storage.Location, prefix string) (int64, int64, error) {
	if source.Key != "" {
		info, err := l.client.HeadObject(ctx, source)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get archive info for %s: %w", source, err)
		}
		return 1, info.Size, nil
	}

	var totalArchives, totalBytes int64
	err := l.walk(ctx, source, prefix, func(info storage.ObjectInfo) error {
		totalArchives++
		totalBytes += info.Size
		return nil
	})
	if err != nil {
		return totalArchives, totalBytes, fmt.Errorf("error counting archives: %w", err)
	}
	return totalArchives, totalBytes, nil
}

func (l *ArchiveLister) enqueueSingleArchive(ctx context.Context, source storage.Location, jobs chan<- worker.Job) (int64, error) {
	info, err := l.client.HeadObject(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("failed to get archive info for %s: %w", source, err)
	}

	select {
	case jobs <- worker.Job{Source: source, Size: info.Size}:
		l.logger.Debug("Enqueued archive", zap.String("key", source.Key))
	case <-ctx.Done():
		return 0, context.Cause(ctx)
	}

	return 1, nil
}

func (l *ArchiveLister) enqueueArchives(ctx context.Context, source storage.Location, prefix string, jobs chan<- worker.Job) (int64, error) {
	var totalArchives, totalSize int64

	err := l.walk(ctx, source, prefix, func(info storage.ObjectInfo) error {
		select {
		case jobs <- worker.Job{Source: source.WithKey(info.Key), Size: info.Size}:
		case <-ctx.Done():
			return context.Cause(ctx)
		}

		totalArchives++
		totalSize += info.Size
		l.logger.Debug("Enqueued archive", zap.String("key", info.Key))
		return nil
	})
	if err != nil {
		return totalArchives, fmt.Errorf("error listing archives: %w", err)
	}

	l.logger.Info("Finished listing archives",
		zap.Int64("total_archives", totalArchives),
		zap.Int64("total_size_bytes", totalSize),
	)
	return totalArchives, nil
}

// walk calls fn for every archive below prefix, skipping other objects
func (l *ArchiveLister) walk(ctx context.Context, source storage.Location, prefix string, fn func(storage.ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objCh, errCh := l.client.ListObjects(ctx, source.Bucket, source.Region, prefix)

	for {
		select {
		case obj, ok := <-objCh:
			if !ok {
				// A listing error may race with the closed object channel
				if err, ok := <-errCh; ok && err != nil {
					return err
				}
				return nil
			}

			if !IsArchiveKey(obj.Key) {
				l.logger.Debug("Skipping object that is not an archive", zap.String("key", obj.Key))
				continue
			}
			if err := fn(obj); err != nil {
				return err
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}

		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}
