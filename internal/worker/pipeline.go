package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"tgz2objects/internal/archive"

	"go.uber.org/zap"
)

// runOnce streams the archive from its beginning and handles every entry in
// order. The next entry is only read after the current one settled, so the
// decompressor never runs ahead of the uploads. The first failing entry
// gets an error record and ends the attempt.
func (t *Task) runOnce(ctx context.Context) error {
	obj, err := t.src.GetObject(ctx, t.cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to open source archive: %w", err)
	}
	defer obj.Close()

	reader, err := archive.NewReader(obj)
	if err != nil {
		return fmt.Errorf("failed to open archive stream: %w", err)
	}
	defer reader.Close()

	for index := 0; ; index++ {
		entry, body, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read entry %d: %w", index, err)
		}

		if err := t.processEntry(ctx, index, entry, body); err != nil {
			t.results.Put(Record{
				Index:   index,
				Entry:   entry,
				Outcome: OutcomeError,
				Err:     err,
			})
			t.metrics.IncFailed()
			return fmt.Errorf("entry %d (%s): %w", index, entry.Name, err)
		}
	}
}

func (t *Task) processEntry(ctx context.Context, index int, entry archive.Entry, body io.Reader) error {
	if cause := t.canceled(ctx); cause != nil {
		return cause
	}

	logger := t.logger.With(
		zap.Int("index", index),
		zap.String("entry", entry.Name),
	)

	// Completed by an earlier attempt: the bytes still have to be pulled
	// through the decompressor to reach the next entry.
	if t.results.Succeeded(index) {
		n, err := Discard(ctx, body)
		if err != nil {
			return fmt.Errorf("failed to skip completed entry: %w", err)
		}
		t.metrics.IncReplayed()
		logger.Debug("Skipped entry completed by a previous attempt", zap.Int64("bytes", n))
		return nil
	}

	if err := checkEntryName(entry.Name); err != nil {
		return err
	}
	if err := CheckSize(entry.Size); err != nil {
		return err
	}

	startTime := time.Now()
	loc := t.cfg.Target.WithKey(entryKey(t.prefix, entry))

	// Directories and links have no body and become zero-length markers
	payload := entry
	if entry.IsHeaderOnly() {
		payload.Size = 0
	}

	info, err := t.upload(ctx, loc, payload, body)
	if err != nil {
		return err
	}

	t.results.Put(Record{
		Index:    index,
		Entry:    entry,
		Outcome:  OutcomeSuccess,
		Response: &info,
	})
	if entry.IsHeaderOnly() {
		t.metrics.IncMarker()
	} else {
		t.metrics.IncUploaded(entry.Size)
	}
	t.metrics.ObserveDuration(time.Since(startTime))
	logger.Info("Entry uploaded",
		zap.String("key", loc.Key),
		zap.String("type", string(entry.Type)),
		zap.Int64("size", payload.Size),
		zap.String("etag", info.ETag),
		zap.Duration("duration", time.Since(startTime)),
	)

	return nil
}
