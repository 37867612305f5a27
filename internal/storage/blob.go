package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
)

// BlobObjectInfo describes a stored blob.
type BlobObjectInfo struct {
	Key       string
	Version   string
	UpdatedAt time.Time
	Size      int64
}

// BlobStore is the storage abstraction for the merged dataset artifact.
type BlobStore interface {
	Head(ctx context.Context, key string) (*BlobObjectInfo, error)
	Download(ctx context.Context, key string, dest string) error
	Upload(ctx context.Context, key string, src string) (*BlobObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// Location is a human readable address of key, returned to clients.
	Location(key string) string
}
