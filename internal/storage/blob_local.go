package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBlobStore implements BlobStore on a local directory.
type LocalBlobStore struct {
	Root string
}

// NewLocalBlobStore creates the root directory if needed.
func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &LocalBlobStore{Root: root}, nil
}

func (l *LocalBlobStore) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

func (l *LocalBlobStore) Location(key string) string {
	return l.path(key)
}

func (l *LocalBlobStore) Head(ctx context.Context, key string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.path(key)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, err
	}

	version, err := fileContentSHA256(path)
	if err != nil {
		return nil, err
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   version,
		UpdatedAt: info.ModTime().UTC(),
		Size:      info.Size(),
	}, nil
}

func (l *LocalBlobStore) Download(ctx context.Context, key, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src := l.path(key)
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("download %s: create %s: %w", src, dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("download %s: copy to %s: %w", src, dest, err)
	}
	return nil
}

// Upload replaces key with the contents of src. Readers never observe a
// partially written blob.
func (l *LocalBlobStore) Upload(ctx context.Context, key string, src string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	srcHash, err := fileContentSHA256(src)
	if err != nil {
		return nil, err
	}

	if err := replaceFileWithCopy(src, dest); err != nil {
		return nil, err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   srcHash,
		UpdatedAt: info.ModTime().UTC(),
		Size:      info.Size(),
	}, nil
}

func (l *LocalBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}

	err := os.Remove(l.path(key))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func fileContentSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// replaceFileWithCopy copies src next to dest and renames it into place.
func replaceFileWithCopy(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
