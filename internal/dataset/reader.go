package dataset

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/storage"
)

// Reader loads the persisted dataset. Failures are logged and reported as
// an absent dataset.
type Reader struct {
	artifacts *ArtifactStore
	logger    *zap.Logger
}

func NewReader(artifacts *ArtifactStore, logger *zap.Logger) *Reader {
	return &Reader{artifacts: artifacts, logger: logger.Named("reader")}
}

// Load returns the dataset, or nil if it is missing or unreadable.
func (r *Reader) Load(ctx context.Context) *models.Dataset {
	ds, _ := r.LoadVersion(ctx)
	return ds
}

// LoadVersion is Load plus the version of the artifact that was read.
func (r *Reader) LoadVersion(ctx context.Context) (*models.Dataset, string) {
	ds, version, err := r.artifacts.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			r.logger.Debug("no concatenated file found")
		} else {
			r.logger.Error("error reading the concatenated file", zap.Error(err))
		}
		return nil, ""
	}
	return ds, version
}

// Version returns the current artifact version, or "" when absent.
func (r *Reader) Version(ctx context.Context) string {
	v, err := r.artifacts.Version(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			r.logger.Warn("checking artifact version", zap.Error(err))
		}
		return ""
	}
	return v
}
