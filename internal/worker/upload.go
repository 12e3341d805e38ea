package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"tgz2objects/internal/archive"
	"tgz2objects/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// sniffLen is how much of an entry is peeked to detect its content type
const sniffLen = 3072

// upload streams body into loc through a pipe. The destination write and the
// copy into the pipe run concurrently and both must succeed.
func (t *Task) upload(ctx context.Context, loc storage.Location, entry archive.Entry, body io.Reader) (storage.UploadInfo, error) {
	source := bufio.NewReaderSize(body, sniffLen)
	head, err := source.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return storage.UploadInfo{}, fmt.Errorf("failed to read entry: %w", err)
	}
	opts := storage.PutOptions{
		ContentType: mimetype.Detect(head).String(),
	}

	relayReader, relayWriter := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	// The relay is the active transfer: cancelling the task, or either side
	// failing, breaks both ends of the pipe so neither goroutine stays
	// blocked. Unregistered once the upload settled.
	stop := context.AfterFunc(gctx, func() {
		cause := context.Cause(gctx)
		relayWriter.CloseWithError(cause)
		relayReader.CloseWithError(cause)
	})
	defer stop()

	var info storage.UploadInfo
	g.Go(func() error {
		var err error
		info, err = t.dst.PutObject(gctx, loc, relayReader, entry.Size, opts)
		relayReader.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(relayWriter, source)
		relayWriter.CloseWithError(err)
		return err
	})

	// Wait also needs the copy to return, so a cancelled upload only ends
	// once a blocked Read on body gives up. Both storage backends tie the
	// source stream to ctx, which guarantees that.
	if err := g.Wait(); err != nil {
		if cause := t.canceled(ctx); cause != nil {
			return storage.UploadInfo{}, cause
		}
		return storage.UploadInfo{}, fmt.Errorf("failed to upload %s: %w", loc, err)
	}

	return info, nil
}
