// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/upload"
)

// UploadHandler handles batch uploads and their history
type UploadHandler interface {
	HandleUpload(c echo.Context) error
	HandleListBatches(c echo.Context) error
	HandleGetBatch(c echo.Context) error
}

// QueryHandler answers natural-language prompts about the dataset
type QueryHandler interface {
	HandleQuery(c echo.Context) error
}

// DatasetHandler exposes the merged dataset
type DatasetHandler interface {
	HandleSummary(c echo.Context) error
	HandleRows(c echo.Context) error
	HandleRowsMsgpack(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Service interfaces for dependency injection

// BatchProcessor runs upload batches. upload.Manager implements it.
type BatchProcessor interface {
	Process(ctx context.Context, files []*models.FileInfo) (*upload.Batch, *dataset.MergeResult, error)
	GetBatch(id string) (*upload.Batch, bool)
	ListBatches(limit int) []*upload.Batch
}

// DatasetProvider hands out references to the current dataset.
// session.Manager implements it.
type DatasetProvider interface {
	Acquire(ctx context.Context) (*session.Handle, error)
}

// QueryRouter routes prompts to the agent or the chart generator.
// query.Router implements it.
type QueryRouter interface {
	Route(ctx context.Context, src dataset.Source, prompt string) (*models.QueryResponse, error)
}
