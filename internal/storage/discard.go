package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DiscardClient is a write-only destination that drains every upload body
// without storing it. It backs dry runs.
type DiscardClient struct{}

// NewDiscardClient creates a new discarding destination
func NewDiscardClient() *DiscardClient {
	return &DiscardClient{}
}

// GetObject is not supported
func (c *DiscardClient) GetObject(ctx context.Context, loc Location) (io.ReadCloser, error) {
	return nil, fmt.Errorf("discard client get %s: %w", loc, errors.ErrUnsupported)
}

// PutObject reads the body to the end and reports its size
func (c *DiscardClient) PutObject(ctx context.Context, loc Location, reader io.Reader, size int64, opts PutOptions) (UploadInfo, error) {
	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		return UploadInfo{}, err
	}
	if n != size {
		return UploadInfo{}, fmt.Errorf("discard client put %s: read %d bytes, expected %d", loc, n, size)
	}

	return UploadInfo{
		Bucket: loc.Bucket,
		Key:    loc.Key,
		Size:   n,
	}, nil
}

// HeadObject always reports a missing object
func (c *DiscardClient) HeadObject(ctx context.Context, loc Location) (ObjectInfo, error) {
	return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
}

// ListObjects yields nothing
func (c *DiscardClient) ListObjects(ctx context.Context, bucket, region, prefix string) (<-chan ObjectInfo, <-chan error) {
	objCh := make(chan ObjectInfo)
	errCh := make(chan error)
	close(objCh)
	close(errCh)
	return objCh, errCh
}
