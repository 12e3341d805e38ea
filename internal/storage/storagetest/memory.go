// Package storagetest provides an in-memory storage.Client with fault
// injection hooks for tests.
package storagetest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"tgz2objects/internal/storage"
)

// MemoryClient stores objects in a map keyed by "bucket/key".
type MemoryClient struct {
	mu       sync.Mutex
	objects  map[string]memoryObject
	gets     int
	attempts map[string]int
	stored   map[string]int

	// BeforePut runs before an upload body is read. A non-nil error fails
	// the upload without consuming the body.
	BeforePut func(ctx context.Context, loc storage.Location) error

	// WrapGet wraps the body returned by the call-th GetObject (1-based).
	WrapGet func(ctx context.Context, call int, r io.Reader) io.Reader
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// NewMemoryClient creates an empty store
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		objects:  make(map[string]memoryObject),
		attempts: make(map[string]int),
		stored:   make(map[string]int),
	}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// AddObject seeds the store
func (c *MemoryClient) AddObject(loc storage.Location, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[objectID(loc.Bucket, loc.Key)] = memoryObject{data: data, modified: time.Now()}
}

// Object returns the stored bytes of an object
func (c *MemoryClient) Object(loc storage.Location) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[objectID(loc.Bucket, loc.Key)]
	return obj.data, ok
}

// ContentType returns the content type an object was stored with
func (c *MemoryClient) ContentType(loc storage.Location) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[objectID(loc.Bucket, loc.Key)].contentType
}

// Keys lists stored keys of a bucket in lexical order
func (c *MemoryClient) Keys(bucket string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for id := range c.objects {
		if key, ok := strings.CutPrefix(id, bucket+"/"); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// GetCount returns the number of GetObject calls
func (c *MemoryClient) GetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

// PutAttempts returns how many uploads to loc were started
func (c *MemoryClient) PutAttempts(loc storage.Location) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[objectID(loc.Bucket, loc.Key)]
}

// StoreCount returns how many uploads to loc completed
func (c *MemoryClient) StoreCount(loc storage.Location) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored[objectID(loc.Bucket, loc.Key)]
}

// GetObject returns a reader over a copy of the stored bytes
func (c *MemoryClient) GetObject(ctx context.Context, loc storage.Location) (io.ReadCloser, error) {
	c.mu.Lock()
	c.gets++
	call := c.gets
	obj, ok := c.objects[objectID(loc.Bucket, loc.Key)]
	wrap := c.WrapGet
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, loc)
	}

	var r io.Reader = bytes.NewReader(obj.data)
	if wrap != nil {
		r = wrap(ctx, call, r)
	}
	return io.NopCloser(r), nil
}

// PutObject reads the whole body and stores it
func (c *MemoryClient) PutObject(ctx context.Context, loc storage.Location, reader io.Reader, size int64, opts storage.PutOptions) (storage.UploadInfo, error) {
	id := objectID(loc.Bucket, loc.Key)

	c.mu.Lock()
	c.attempts[id]++
	hook := c.BeforePut
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, loc); err != nil {
			return storage.UploadInfo{}, err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.UploadInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.UploadInfo{}, context.Cause(ctx)
	}
	if int64(len(data)) != size {
		return storage.UploadInfo{}, fmt.Errorf("put %s: got %d bytes, expected %d", loc, len(data), size)
	}

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	c.mu.Lock()
	c.objects[id] = memoryObject{
		data:        data,
		contentType: opts.ContentType,
		metadata:    opts.Metadata,
		modified:    time.Now(),
	}
	c.stored[id]++
	c.mu.Unlock()

	return storage.UploadInfo{
		Bucket: loc.Bucket,
		Key:    loc.Key,
		ETag:   etag,
		Size:   size,
	}, nil
}

// HeadObject returns metadata of a stored object
func (c *MemoryClient) HeadObject(ctx context.Context, loc storage.Location) (storage.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[objectID(loc.Bucket, loc.Key)]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, loc)
	}

	sum := md5.Sum(obj.data)
	return storage.ObjectInfo{
		Key:          loc.Key,
		Size:         int64(len(obj.data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
		Metadata:     obj.metadata,
	}, nil
}

// ListObjects lists stored objects of a bucket under prefix in lexical order
func (c *MemoryClient) ListObjects(ctx context.Context, bucket, region, prefix string) (<-chan storage.ObjectInfo, <-chan error) {
	objCh := make(chan storage.ObjectInfo)
	errCh := make(chan error, 1)

	var infos []storage.ObjectInfo
	for _, key := range c.Keys(bucket) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		info, err := c.HeadObject(ctx, storage.Location{Bucket: bucket, Key: key})
		if err == nil {
			infos = append(infos, info)
		}
	}

	go func() {
		defer close(objCh)
		defer close(errCh)
		for _, info := range infos {
			select {
			case objCh <- info:
			case <-ctx.Done():
				return
			}
		}
	}()

	return objCh, errCh
}
