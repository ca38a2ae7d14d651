// Package handlers implements HTTP handlers for the listing-watcher ops API.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/donaldgifford/listing-watcher/internal/engine"
)

// StateSource reports the poll loop lifecycle state.
type StateSource interface {
	State() engine.State
}

// HealthHandler provides health and readiness endpoints.
type HealthHandler struct {
	source StateSource
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s StateSource) *HealthHandler {
	return &HealthHandler{source: s}
}

// Healthz returns 200 if the process is running.
func (*HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Readyz returns 200 once the watcher has a baseline snapshot and is
// cycling, 503 while bootstrapping or after it stopped.
func (h *HealthHandler) Readyz(c echo.Context) error {
	switch st := h.source.State(); st {
	case engine.StateCycling:
		return c.JSON(http.StatusOK, StatusResponse{Status: "ready"})
	default:
		return c.JSON(http.StatusServiceUnavailable, StatusResponse{Status: st.String()})
	}
}
