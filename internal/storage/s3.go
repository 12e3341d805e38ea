package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the AWS S3 client used by S3Client. It includes
// the multipart calls the upload manager needs. Tests substitute it with a
// mock.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Client implements the Client interface using aws-sdk-go-v2.
// Unlike the MinIO backend it honours the region of every Location.
type S3Client struct {
	api      S3API
	uploader *manager.Uploader
}

// NewS3Client creates a client from the default AWS credential chain,
// overridden by static keys and a custom endpoint when configured
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			scheme := "http://"
			if cfg.Secure {
				scheme = "https://"
			}
			endpoint = scheme + endpoint
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewS3ClientWithAPI(client), nil
}

// NewS3ClientWithAPI wraps an existing S3API implementation.
// Uploads are cut into parts of manager.DefaultUploadPartSize sent one at a
// time; at most one part is buffered ahead of the one in flight.
func NewS3ClientWithAPI(api S3API) *S3Client {
	return &S3Client{
		api: api,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = manager.DefaultUploadPartSize
			u.Concurrency = 1
		}),
	}
}

// GetObject opens a read stream on an object
func (c *S3Client) GetObject(ctx context.Context, loc Location) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, withRegion(loc.Region)...)
	if err != nil {
		return nil, translateS3Error("get", loc, err)
	}
	return out.Body, nil
}

// PutObject uploads an object. The body may be an unseekable stream: the
// upload manager buffers it part by part, which also works on plain-HTTP
// endpoints where the SDK refuses to sign an unseekable payload.
func (c *S3Client) PutObject(ctx context.Context, loc Location, reader io.Reader, size int64, opts PutOptions) (UploadInfo, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	out, err := c.uploader.Upload(ctx, input, manager.WithUploaderRequestOptions(withRegion(loc.Region)...))
	if err != nil {
		return UploadInfo{}, translateS3Error("put", loc, err)
	}

	return UploadInfo{
		Bucket:    loc.Bucket,
		Key:       loc.Key,
		ETag:      strings.Trim(aws.ToString(out.ETag), `"`),
		Size:      size,
		VersionID: aws.ToString(out.VersionID),
	}, nil
}

// HeadObject gets object metadata
func (c *S3Client) HeadObject(ctx context.Context, loc Location) (ObjectInfo, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, withRegion(loc.Region)...)
	if err != nil {
		return ObjectInfo{}, translateS3Error("head", loc, err)
	}

	return ObjectInfo{
		Key:          loc.Key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     out.Metadata,
	}, nil
}

// ListObjects lists objects with prefix
func (c *S3Client) ListObjects(ctx context.Context, bucket, region, prefix string) (<-chan ObjectInfo, <-chan error) {
	objCh := make(chan ObjectInfo)
	errCh := make(chan error, 1)

	go func() {
		defer close(objCh)
		defer close(errCh)

		paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx, withRegion(region)...)
			if err != nil {
				errCh <- translateS3Error("list", Location{Bucket: bucket, Region: region, Key: prefix}, err)
				return
			}

			for _, obj := range page.Contents {
				select {
				case objCh <- ObjectInfo{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
					LastModified: aws.ToTime(obj.LastModified),
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return objCh, errCh
}

func withRegion(region string) []func(*s3.Options) {
	if region == "" {
		return nil
	}
	return []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = region
		},
	}
}

func translateS3Error(op string, loc Location, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
		}
		return fmt.Errorf("s3 %s %s failed: %s: %w", op, loc, apiErr.ErrorCode(), err)
	}

	return fmt.Errorf("s3 %s %s failed: %w", op, loc, err)
}
