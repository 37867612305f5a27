// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campaign-insights/backend/internal/session"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions *session.Manager
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(version string, sessions *session.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		if current := h.sessions.Current(); current != nil {
			resp["dataset"] = current.Version
		}
	}
	return c.JSON(http.StatusOK, resp)
}
