// handlers_query.go - Natural-language query handler
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/models"
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	datasets DatasetProvider
	router   QueryRouter
	logger   *zap.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(datasets DatasetProvider, router QueryRouter, logger *zap.Logger) QueryHandler {
	return &QueryHandlerImpl{
		datasets: datasets,
		router:   router,
		logger:   logger.Named("query"),
	}
}

// HandleQuery answers {prompt} with text or a base64 chart image
func (h *QueryHandlerImpl) HandleQuery(c echo.Context) error {
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	// A missing dataset is reported before the prompt is looked at.
	ctx := c.Request().Context()
	handle, err := h.datasets.Acquire(ctx)
	if err != nil {
		return translateError(err, "Error processing query.")
	}
	defer handle.Release()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return NewValidationError("prompt")
	}

	resp, err := h.router.Route(ctx, handle, prompt)
	if err != nil {
		h.logger.Error("query failed", zap.String("prompt", prompt), zap.String("dataset", handle.Version), zap.Error(err))
		return NewInternalError("Error processing query: "+err.Error(), err)
	}
	return c.JSON(http.StatusOK, resp)
}
