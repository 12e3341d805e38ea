package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	getObject     func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	putObject     func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	headObject    func(ctx context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	listObjectsV2 func(ctx context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)

	createMultipartUpload   func(ctx context.Context, params *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error)
	uploadPart              func(ctx context.Context, params *s3.UploadPartInput) (*s3.UploadPartOutput, error)
	completeMultipartUpload func(ctx context.Context, params *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error)
	abortMultipartUpload    func(ctx context.Context, params *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error)

	mu      sync.Mutex
	regions []string
}

func (m *mockS3API) record(optFns []func(*s3.Options)) {
	var opts s3.Options
	for _, fn := range optFns {
		fn(&opts)
	}
	m.mu.Lock()
	m.regions = append(m.regions, opts.Region)
	m.mu.Unlock()
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.record(optFns)
	return m.getObject(ctx, params)
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.record(optFns)
	return m.putObject(ctx, params)
}

func (m *mockS3API) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.record(optFns)
	return m.headObject(ctx, params)
}

func (m *mockS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.record(optFns)
	return m.listObjectsV2(ctx, params)
}

func (m *mockS3API) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.record(optFns)
	return m.createMultipartUpload(ctx, params)
}

func (m *mockS3API) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	m.record(optFns)
	return m.uploadPart(ctx, params)
}

func (m *mockS3API) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.record(optFns)
	return m.completeMultipartUpload(ctx, params)
}

func (m *mockS3API) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.record(optFns)
	return m.abortMultipartUpload(ctx, params)
}

// pipeBody streams data through an io.Pipe, the way the extractor feeds
// entry bodies to PutObject
func pipeBody(data []byte) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, err := pw.Write(data)
		pw.CloseWithError(err)
	}()
	return pr
}

func TestS3Client_PutObject(t *testing.T) {
	var gotBody string
	api := &mockS3API{
		putObject: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			assert.Equal(t, "dst", aws.ToString(params.Bucket))
			assert.Equal(t, "out/a.txt", aws.ToString(params.Key))
			assert.Equal(t, int64(5), aws.ToInt64(params.ContentLength))
			assert.Equal(t, "text/plain", aws.ToString(params.ContentType))
			data, err := io.ReadAll(params.Body)
			require.NoError(t, err)
			gotBody = string(data)
			return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`), VersionId: aws.String("v1")}, nil
		},
	}
	client := NewS3ClientWithAPI(api)

	info, err := client.PutObject(context.Background(),
		Location{Bucket: "dst", Region: "ap-southeast-2", Key: "out/a.txt"},
		strings.NewReader("hello"), 5, PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, "abc123", info.ETag)
	assert.Equal(t, "v1", info.VersionID)
	assert.Equal(t, []string{"ap-southeast-2"}, api.regions)
}

func TestS3Client_PutObjectMultipartFromPipe(t *testing.T) {
	const partSize = 5 * 1024 * 1024
	payload := bytes.Repeat([]byte("x"), 2*partSize+1024)

	var (
		mu        sync.Mutex
		partSizes = map[int32]int{}
		completed int
	)
	api := &mockS3API{
		createMultipartUpload: func(ctx context.Context, params *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
			assert.Equal(t, "out/big.bin", aws.ToString(params.Key))
			assert.Equal(t, "application/octet-stream", aws.ToString(params.ContentType))
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
		},
		uploadPart: func(ctx context.Context, params *s3.UploadPartInput) (*s3.UploadPartOutput, error) {
			assert.Equal(t, "upload-1", aws.ToString(params.UploadId))
			data, err := io.ReadAll(params.Body)
			require.NoError(t, err)
			mu.Lock()
			partSizes[aws.ToInt32(params.PartNumber)] = len(data)
			mu.Unlock()
			return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-%d"`, aws.ToInt32(params.PartNumber)))}, nil
		},
		completeMultipartUpload: func(ctx context.Context, params *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
			completed = len(params.MultipartUpload.Parts)
			return &s3.CompleteMultipartUploadOutput{ETag: aws.String(`"multi-3"`), Key: params.Key}, nil
		},
		abortMultipartUpload: func(ctx context.Context, params *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
			t.Error("multipart upload should not be aborted")
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}

	info, err := NewS3ClientWithAPI(api).PutObject(context.Background(),
		Location{Bucket: "dst", Region: "eu-west-1", Key: "out/big.bin"},
		pipeBody(payload), int64(len(payload)), PutOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err)

	assert.Equal(t, "multi-3", info.ETag)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.Equal(t, 3, completed)
	assert.Equal(t, map[int32]int{1: partSize, 2: partSize, 3: 1024}, partSizes)
	for _, region := range api.regions {
		assert.Equal(t, "eu-west-1", region)
	}
}

func TestS3Client_PutObjectStreamsOverPlainHTTP(t *testing.T) {
	var (
		mu       sync.Mutex
		received = map[string]string{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received[r.URL.Path] = string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"plain-http"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewS3Client(context.Background(), Config{
		Backend:   BackendS3,
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
		Region:    "us-east-1",
		PathStyle: true,
	})
	require.NoError(t, err)

	payload := []byte("entry streamed through a pipe")
	info, err := client.PutObject(context.Background(),
		Location{Bucket: "dst", Key: "out/docs/readme.txt"},
		pipeBody(payload), int64(len(payload)), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	assert.Equal(t, "plain-http", info.ETag)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, string(payload), received["/dst/out/docs/readme.txt"])
}

func TestS3Client_RegionOverrideIsOptional(t *testing.T) {
	api := &mockS3API{
		headObject: func(ctx context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(42), ETag: aws.String(`"e"`)}, nil
		},
	}
	client := NewS3ClientWithAPI(api)

	info, err := client.HeadObject(context.Background(), Location{Bucket: "src", Key: "a.tar"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Size)
	assert.Equal(t, "e", info.ETag)
	assert.Equal(t, []string{""}, api.regions)
}

func TestS3Client_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		wantMessage string
	}{
		{"typed no such key", &types.NoSuchKey{}, true, ""},
		{"head not found", &smithy.GenericAPIError{Code: "NotFound"}, true, ""},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}, false, "AccessDenied"},
		{"transport", errors.New("connection refused"), false, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockS3API{
				getObject: func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
					return nil, tt.err
				},
			}

			_, err := NewS3ClientWithAPI(api).GetObject(context.Background(), Location{Bucket: "src", Key: "a.tar"})
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrObjectNotFound))
			if tt.wantMessage != "" {
				assert.Contains(t, err.Error(), tt.wantMessage)
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestS3Client_ListObjectsPaginates(t *testing.T) {
	pages := map[string]*s3.ListObjectsV2Output{
		"": {
			Contents:              []types.Object{{Key: aws.String("p/a.tar"), Size: aws.Int64(1)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		"next": {
			Contents:    []types.Object{{Key: aws.String("p/b.tar"), Size: aws.Int64(2), ETag: aws.String(`"x"`)}},
			IsTruncated: aws.Bool(false),
		},
	}
	api := &mockS3API{
		listObjectsV2: func(ctx context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			assert.Equal(t, "p/", aws.ToString(params.Prefix))
			return pages[aws.ToString(params.ContinuationToken)], nil
		},
	}

	objCh, errCh := NewS3ClientWithAPI(api).ListObjects(context.Background(), "src", "eu-west-1", "p/")

	var keys []string
	for obj := range objCh {
		keys = append(keys, obj.Key)
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"p/a.tar", "p/b.tar"}, keys)
	assert.Equal(t, []string{"eu-west-1", "eu-west-1"}, api.regions)
}

func TestS3Client_ListObjectsError(t *testing.T) {
	api := &mockS3API{
		listObjectsV2: func(ctx context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchBucket"}
		},
	}

	objCh, errCh := NewS3ClientWithAPI(api).ListObjects(context.Background(), "missing", "", "")
	for range objCh {
		t.Fatal("no objects expected")
	}
	assert.ErrorContains(t, <-errCh, "NoSuchBucket")
}
