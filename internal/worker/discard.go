package worker

import (
	"context"
	"errors"
	"io"
)

const discardChunkSize = 32 * 1024

// Discard drains r without keeping the bytes. Reads happen one chunk at a
// time so the source is only pulled as fast as it is consumed, and
// cancellation is observed between chunks.
func Discard(ctx context.Context, r io.Reader) (int64, error) {
	buf := make([]byte, discardChunkSize)
	var total int64

	for {
		if ctx.Err() != nil {
			return total, context.Cause(ctx)
		}

		n, err := r.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
