// handlers_dataset.go - Merged dataset inspection handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/session"
)

// DatasetHandlerImpl implements the DatasetHandler interface
type DatasetHandlerImpl struct {
	datasets DatasetProvider
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(datasets DatasetProvider) DatasetHandler {
	return &DatasetHandlerImpl{datasets: datasets}
}

// HandleSummary returns describe() statistics for every column
func (h *DatasetHandlerImpl) HandleSummary(c echo.Context) error {
	ctx := c.Request().Context()
	handle, err := h.datasets.Acquire(ctx)
	if err != nil {
		return translateError(err, "failed to load dataset")
	}
	defer handle.Release()

	store, err := handle.Store(ctx)
	if err != nil {
		return NewInternalError("failed to open dataset", err)
	}
	columns, err := store.Summary(ctx)
	if err != nil {
		return NewInternalError("failed to summarize dataset", err)
	}

	return c.JSON(http.StatusOK, models.DatasetSummary{
		Version:  handle.Version,
		RowCount: handle.Dataset().RowCount(),
		Columns:  columns,
	})
}

type rowsResponse struct {
	Version  string     `json:"version" msgpack:"version"`
	Columns  []string   `json:"columns" msgpack:"columns"`
	Rows     [][]string `json:"rows" msgpack:"rows"`
	Page     int        `json:"page" msgpack:"page"`
	PageSize int        `json:"pageSize" msgpack:"pageSize"`
	Total    int        `json:"total" msgpack:"total"`
}

// HandleRows returns a page of dataset rows as JSON
func (h *DatasetHandlerImpl) HandleRows(c echo.Context) error {
	resp, err := h.rows(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleRowsMsgpack returns a page of dataset rows in MessagePack format.
func (h *DatasetHandlerImpl) HandleRowsMsgpack(c echo.Context) error {
	resp, err := h.rows(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *DatasetHandlerImpl) rows(c echo.Context) (*rowsResponse, error) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}

	handle, err := h.datasets.Acquire(c.Request().Context())
	if err != nil {
		return nil, translateError(err, "failed to load dataset")
	}
	defer handle.Release()

	ds := handle.Dataset()
	return &rowsResponse{
		Version:  handle.Version,
		Columns:  ds.Columns,
		Rows:     ds.Page(page, pageSize),
		Page:     page,
		PageSize: pageSize,
		Total:    ds.RowCount(),
	}, nil
}

var _ DatasetProvider = (*session.Manager)(nil)
