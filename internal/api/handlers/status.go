package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/listing-watcher/internal/engine"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// WatcherProvider exposes the read-only view of the poll loop.
type WatcherProvider interface {
	Status() engine.Status
	RecentEvents(limit int) []domain.EventRecord
}

// StatusHandler serves the poll loop status and recent events.
type StatusHandler struct {
	watcher WatcherProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(w WatcherProvider) *StatusHandler {
	return &StatusHandler{watcher: w}
}

// StatusOutput is the response for GET /api/v1/status.
type StatusOutput struct {
	Body domain.StatusReport
}

// ListEventsInput holds query parameters for GET /api/v1/events.
type ListEventsInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"1000" doc:"Maximum events to return"`
}

// ListEventsOutput is the response for GET /api/v1/events.
type ListEventsOutput struct {
	Body []domain.EventReport
}

// GetStatus returns the most recently published poll loop status.
func (h *StatusHandler) GetStatus(
	_ context.Context,
	_ *struct{},
) (*StatusOutput, error) {
	st := h.watcher.Status()
	return &StatusOutput{Body: st.Report()}, nil
}

// ListEvents returns recently notified events, newest first.
func (h *StatusHandler) ListEvents(
	_ context.Context,
	input *ListEventsInput,
) (*ListEventsOutput, error) {
	recs := h.watcher.RecentEvents(input.Limit)
	out := make([]domain.EventReport, 0, len(recs))
	for i := range recs {
		out = append(out, domain.NewEventReport(&recs[i]))
	}
	return &ListEventsOutput{Body: out}, nil
}

// RegisterStatusRoutes registers the status and events routes on the Huma API.
func RegisterStatusRoutes(api huma.API, h *StatusHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Get watcher status",
		Description: "Returns the poll loop state, cycle counters and snapshot size.",
		Tags:        []string{"watcher"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "List recent events",
		Description: "Returns recently notified created and updated events, newest first.",
		Tags:        []string{"watcher"},
	}, h.ListEvents)
}
