package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Options configures NewS3Client.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client. Credentials fall back to the standard
// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY variables.
func NewS3Client(opts S3Options) *s3.Client {
	accessKey := opts.AccessKeyID
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	secretKey := opts.SecretAccessKey
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	o := s3.Options{
		Region:       opts.Region,
		Credentials:  aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("AWS_SESSION_TOKEN"))),
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		o.EndpointResolver = s3.EndpointResolverFromURL(opts.Endpoint)
	}
	return s3.New(o)
}

// LoadS3Client builds an S3 client from the default AWS credential chain
// (environment, shared config, instance role) unless static keys are set.
func LoadS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		return NewS3Client(opts), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
		if opts.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(opts.Endpoint)
		}
	}), nil
}

// S3BlobStore implements BlobStore using S3 or an S3 compatible service.
type S3BlobStore struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3BlobStore creates a new S3-backed blob store.
// The prefix is optional and will be prepended to all keys.
func NewS3BlobStore(client *s3.Client, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{
		Client: client,
		Bucket: bucket,
		Prefix: prefix,
	}
}

func (s *S3BlobStore) fullKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return s.Prefix + key
}

func (s *S3BlobStore) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.Bucket, s.fullKey(key))
}

// Head retrieves metadata for an object.
// Returns ErrBlobNotFound if the object doesn't exist.
func (s *S3BlobStore) Head(ctx context.Context, key string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	updatedAt := time.Now().UTC()
	if result.LastModified != nil {
		updatedAt = result.LastModified.UTC()
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   aws.ToString(result.ETag),
		UpdatedAt: updatedAt,
		Size:      result.ContentLength,
	}, nil
}

// Download retrieves an object and writes it to dest.
func (s *S3BlobStore) Download(ctx context.Context, key string, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer result.Body.Close()

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, result.Body); err != nil {
		return fmt.Errorf("download object %s: %w", key, err)
	}

	return file.Sync()
}

// Upload puts src under key, replacing any previous object.
func (s *S3BlobStore) Upload(ctx context.Context, key string, src string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}

	result, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          file,
		ContentLength: info.Size(),
		ContentType:   aws.String("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   aws.ToString(result.ETag),
		UpdatedAt: time.Now().UTC(),
		Size:      info.Size(),
	}, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var responseErr *smithyhttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound
}
