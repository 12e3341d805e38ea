package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Supported storage backends
const (
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// ErrObjectNotFound is returned when the addressed object does not exist
var ErrObjectNotFound = errors.New("storage: object not found")

// Client defines the interface for S3-compatible storage operations
type Client interface {
	// GetObject opens a read stream. Network errors surface from Read.
	GetObject(ctx context.Context, loc Location) (io.ReadCloser, error)
	// PutObject uploads exactly size bytes from reader as a single object.
	PutObject(ctx context.Context, loc Location, reader io.Reader, size int64, opts PutOptions) (UploadInfo, error)
	HeadObject(ctx context.Context, loc Location) (ObjectInfo, error)
	ListObjects(ctx context.Context, bucket, region, prefix string) (<-chan ObjectInfo, <-chan error)
}

// Location addresses an object, or a key prefix, in a bucket
type Location struct {
	Bucket string
	Region string
	Key    string
}

// WithKey returns a copy of the location pointing at key
func (l Location) WithKey(key string) Location {
	l.Key = key
	return l
}

func (l Location) String() string {
	return fmt.Sprintf("%s/%s", l.Bucket, l.Key)
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// UploadInfo is the provider's response to a completed upload
type UploadInfo struct {
	Bucket    string
	Key       string
	ETag      string
	Size      int64
	VersionID string
}

// Config contains client configuration
type Config struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	PathStyle bool
}

// New creates a client for the configured backend
func New(cfg Config) (Client, error) {
	switch cfg.Backend {
	case "", BackendMinIO:
		return NewMinIOClient(cfg)
	case BackendS3:
		return NewS3Client(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
