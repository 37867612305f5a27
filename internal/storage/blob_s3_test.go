package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign-insights/backend/internal/storage"
	"github.com/campaign-insights/backend/internal/testutil"
)

func TestS3BlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockS3(t, "campaigns")
	store := storage.NewS3BlobStore(mock.Client, mock.Bucket, "datasets/")

	_, err := store.Head(ctx, "concatenated_file.xlsx")
	assert.True(t, errors.Is(err, storage.ErrBlobNotFound), "got %v", err)

	src := filepath.Join(t.TempDir(), "artifact.xlsx")
	require.NoError(t, os.WriteFile(src, []byte("workbook bytes"), 0o644))

	uploaded, err := store.Upload(ctx, "concatenated_file.xlsx", src)
	require.NoError(t, err)
	assert.NotEmpty(t, uploaded.Version)
	keys, err := mock.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"datasets/concatenated_file.xlsx"}, keys)

	head, err := store.Head(ctx, "concatenated_file.xlsx")
	require.NoError(t, err)
	assert.Equal(t, uploaded.Version, head.Version)
	assert.Equal(t, int64(len("workbook bytes")), head.Size)

	dest := filepath.Join(t.TempDir(), "download.xlsx")
	require.NoError(t, store.Download(ctx, "concatenated_file.xlsx", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "workbook bytes", string(data))

	assert.Equal(t, "s3://campaigns/datasets/concatenated_file.xlsx", store.Location("concatenated_file.xlsx"))

	require.NoError(t, store.Delete(ctx, "concatenated_file.xlsx"))
	err = store.Download(ctx, "concatenated_file.xlsx", dest)
	assert.True(t, errors.Is(err, storage.ErrBlobNotFound), "got %v", err)
}

func TestLoadS3Client_DefaultCredentialChain(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockS3(t, "campaigns")

	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	client, err := storage.LoadS3Client(ctx, storage.S3Options{
		Region:       "us-east-1",
		Endpoint:     mock.Server.URL,
		UsePathStyle: true,
	})
	require.NoError(t, err)

	store := storage.NewS3BlobStore(client, mock.Bucket, "")
	src := filepath.Join(t.TempDir(), "artifact.xlsx")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	_, err = store.Upload(ctx, "concatenated_file.xlsx", src)
	require.NoError(t, err)
	keys, err := mock.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"concatenated_file.xlsx"}, keys)
}
