package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLocalBlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "runtime"))
	require.NoError(t, err)

	_, err = store.Head(ctx, "concatenated_file.xlsx")
	assert.True(t, errors.Is(err, ErrBlobNotFound))

	first, err := store.Upload(ctx, "concatenated_file.xlsx", writeTemp(t, "one"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Size)

	head, err := store.Head(ctx, "concatenated_file.xlsx")
	require.NoError(t, err)
	assert.Equal(t, first.Version, head.Version)

	second, err := store.Upload(ctx, "concatenated_file.xlsx", writeTemp(t, "two!"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	dest := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, store.Download(ctx, "concatenated_file.xlsx", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "two!", string(data))

	assert.Equal(t, filepath.Join(store.Root, "concatenated_file.xlsx"), store.Location("concatenated_file.xlsx"))

	require.NoError(t, store.Delete(ctx, "concatenated_file.xlsx"))
	require.NoError(t, store.Delete(ctx, "concatenated_file.xlsx"))
	err = store.Download(ctx, "concatenated_file.xlsx", dest)
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

func TestLocalBlobStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(ctx, "a.xlsx", writeTemp(t, "content"))
	require.NoError(t, err)

	entries, err := os.ReadDir(store.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.xlsx", entries[0].Name())
}

func TestLocalBlobStore_CanceledContext(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Head(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
