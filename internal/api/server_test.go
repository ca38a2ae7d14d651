package api_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/listing-watcher/internal/api"
	"github.com/donaldgifford/listing-watcher/internal/engine"
	"github.com/donaldgifford/listing-watcher/pkg/logger"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

type stubWatcher struct {
	state engine.State
}

func (s stubWatcher) State() engine.State { return s.state }

func (s stubWatcher) Status() engine.Status {
	return engine.Status{State: s.state, Cycle: 4, Queries: []string{"gpu"}}
}

func (stubWatcher) RecentEvents(int) []domain.EventRecord { return nil }

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	srv := api.NewServer(api.ServerConfig{}, stubWatcher{state: engine.StateCycling}, logger.Discard())

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/healthz", wantStatus: http.StatusOK, wantBody: `"ok"`},
		{path: "/readyz", wantStatus: http.StatusOK, wantBody: `"ready"`},
		{path: "/metrics", wantStatus: http.StatusOK, wantBody: "lw_http_requests_total"},
		{path: "/api/v1/status", wantStatus: http.StatusOK, wantBody: `"cycle":4`},
		{path: "/api/v1/events", wantStatus: http.StatusOK, wantBody: `[]`},
		{path: "/openapi.json", wantStatus: http.StatusOK, wantBody: "list-events"},
		{path: "/nope", wantStatus: http.StatusNotFound},
	}

	// Prime the request counter so /metrics has a series to show.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody))

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := api.NewServer(api.ServerConfig{Addr: addr}, stubWatcher{state: engine.StateBootstrapping}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := fmt.Sprintf("http://%s/readyz", addr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
