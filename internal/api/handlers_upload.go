// handlers_upload.go - Batch upload and concatenation handlers
package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/storage"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store    storage.Store
	uploads  BatchProcessor
	maxFiles int
	logger   *zap.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(store storage.Store, uploads BatchProcessor, maxFiles int, logger *zap.Logger) UploadHandler {
	return &UploadHandlerImpl{
		store:    store,
		uploads:  uploads,
		maxFiles: maxFiles,
		logger:   logger.Named("upload"),
	}
}

// MessageConcatenated is the success message of POST /upload/.
const MessageConcatenated = "Files concatenated successfully"

type uploadResponse struct {
	Message    string   `json:"message"`
	OutputFile string   `json:"output_file"`
	BatchID    string   `json:"batch_id"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
	Skipped    []string `json:"skipped,omitempty"`
}

// HandleUpload saves the multipart "files" parts and concatenates them into
// the dataset.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files")
	}
	if len(headers) > h.maxFiles {
		return NewBadRequestError(fmt.Sprintf("You can upload a maximum of %d files.", h.maxFiles), nil)
	}

	files := make([]*models.FileInfo, 0, len(headers))
	for _, fh := range headers {
		info, err := h.save(fh)
		if err != nil {
			h.logger.Error("saving uploaded file", zap.String("file", fh.Filename), zap.Error(err))
			h.discard(files)
			return NewInternalError(fmt.Sprintf("failed to save file %s", fh.Filename), err)
		}
		files = append(files, info)
	}

	batch, result, err := h.uploads.Process(c.Request().Context(), files)
	if err != nil {
		h.logger.Warn("upload batch failed", zap.Int("files", len(files)), zap.Error(err))
		return translateError(err, "Error concatenating files.")
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Message:    MessageConcatenated,
		OutputFile: result.OutputFile,
		BatchID:    batch.ID,
		Rows:       result.Dataset.RowCount(),
		Columns:    result.Dataset.Columns,
		Skipped:    result.Skipped,
	})
}

func (h *UploadHandlerImpl) save(fh *multipart.FileHeader) (*models.FileInfo, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return h.store.Save(fh.Filename, src)
}

func (h *UploadHandlerImpl) discard(files []*models.FileInfo) {
	for _, f := range files {
		if err := h.store.Delete(f.ID); err != nil {
			h.logger.Warn("removing uploaded file", zap.String("file", f.Name), zap.Error(err))
		}
	}
}

// HandleListBatches returns recent upload batches, newest first
func (h *UploadHandlerImpl) HandleListBatches(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return c.JSON(http.StatusOK, h.uploads.ListBatches(limit))
}

// HandleGetBatch returns one upload batch
func (h *UploadHandlerImpl) HandleGetBatch(c echo.Context) error {
	id := c.Param("batchId")
	if id == "" {
		return NewValidationError("batchId")
	}
	batch, ok := h.uploads.GetBatch(id)
	if !ok {
		return NewNotFoundError("batch", id)
	}
	return c.JSON(http.StatusOK, batch)
}
