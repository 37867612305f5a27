package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/campaign-insights/backend/internal/storage"
)

// MockS3 is an in-memory S3 endpoint with one bucket.
type MockS3 struct {
	Server *httptest.Server
	Client *s3.Client
	Bucket string
}

// StartMockS3 starts a gofakes3 server holding bucket. Close stops it.
func StartMockS3(ctx context.Context, bucket string) (*MockS3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	faker := gofakes3.New(s3mem.New())
	server := httptest.NewServer(faker.Server())

	client := storage.NewS3Client(storage.S3Options{
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		server.Close()
		return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
	}

	return &MockS3{
		Server: server,
		Client: client,
		Bucket: bucket,
	}, nil
}

// NewMockS3 starts a mock S3 server that is closed with the test.
func NewMockS3(t *testing.T, bucket string) *MockS3 {
	t.Helper()
	m, err := StartMockS3(context.Background(), bucket)
	if err != nil {
		t.Fatalf("start mock s3: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// Keys lists the object keys in the bucket, sorted.
func (m *MockS3) Keys(ctx context.Context) ([]string, error) {
	out, err := m.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(m.Bucket)})
	if err != nil {
		return nil, fmt.Errorf("list bucket %q: %w", m.Bucket, err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockS3) Close() {
	if m == nil || m.Server == nil {
		return
	}
	m.Server.Close()
}
