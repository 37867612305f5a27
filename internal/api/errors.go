// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// MessageNoDataset is returned whenever a request needs the merged dataset
// before any batch has been concatenated.
const MessageNoDataset = "No concatenated file found."

// noDatasetError creates the 404 returned before the first successful upload.
func noDatasetError() *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NO_DATASET",
		Message: MessageNoDataset,
	}
}

// translateError maps domain errors onto API errors. Anything unrecognized
// becomes a 500 carrying fallback and the cause text.
func translateError(err error, fallback string) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validation *dataset.ValidationError
	switch {
	case errors.As(err, &validation):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_ERROR",
			Message: validation.Message,
		}
	case errors.Is(err, dataset.ErrValidation):
		return NewBadRequestError(err.Error(), nil)
	case errors.Is(err, session.ErrNoDataset):
		return noDatasetError()
	case errors.Is(err, upload.ErrUploadInProgress):
		e := NewConflictError("Another upload is being processed. Please retry shortly.")
		e.Details = err.Error()
		return e
	}
	return NewInternalError(fallback, err)
}

// NewErrorHandler returns an echo error handler that renders APIError JSON
// and logs server-side failures.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger)
func NewErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	logger = logger.Named("http")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", apiErr.Status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
