package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		status        int
		providedReqID string
		wantLogFields []string
	}{
		{
			name:   "logs GET request with generated ID",
			method: http.MethodGet,
			path:   "/api/v1/status",
			status: http.StatusOK,
			wantLogFields: []string{
				"method=GET",
				"path=/api/v1/status",
				"status=200",
				"duration_ms=",
				"request_id=",
			},
		},
		{
			name:   "logs client error at warn",
			method: http.MethodGet,
			path:   "/api/v1/events",
			status: http.StatusUnprocessableEntity,
			wantLogFields: []string{
				"level=WARN",
				"status=422",
			},
		},
		{
			name:          "uses provided request ID",
			method:        http.MethodGet,
			path:          "/test",
			status:        http.StatusOK,
			providedReqID: "custom-req-id-123",
			wantLogFields: []string{
				"request_id=custom-req-id-123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			if tt.providedReqID != "" {
				req.Header.Set(requestIDHeader, tt.providedReqID)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := RequestLog(logger)(func(c echo.Context) error {
				return c.NoContent(tt.status)
			})

			err := handler(c)
			require.NoError(t, err)

			logOutput := buf.String()
			for _, field := range tt.wantLogFields {
				assert.Contains(t, logOutput, field)
			}

			// Response should have the request ID header.
			respID := rec.Header().Get(requestIDHeader)
			assert.NotEmpty(t, respID)

			if tt.providedReqID != "" {
				assert.Equal(t, tt.providedReqID, respID)
			}

			// Context should have request_id.
			assert.NotEmpty(t, c.Get("request_id"))
		})
	}
}

func serveProbe(t *testing.T, handler echo.HandlerFunc, path string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
}

func TestRequestLog_ProbeLoggedOnStatusChange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	statuses := []int{
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusOK,
		http.StatusOK,
		http.StatusServiceUnavailable,
	}
	call := 0
	handler := RequestLog(logger)(func(c echo.Context) error {
		s := statuses[call]
		call++
		return c.NoContent(s)
	})

	// First call: logged at WARN while bootstrapping.
	serveProbe(t, handler, "/readyz")
	assert.Contains(t, buf.String(), "status=503")
	assert.Contains(t, buf.String(), "level=WARN")
	n := buf.Len()

	// Same status again: suppressed.
	serveProbe(t, handler, "/readyz")
	assert.Equal(t, n, buf.Len(), "repeated 503 should be suppressed")

	// Became ready: logged.
	serveProbe(t, handler, "/readyz")
	assert.Greater(t, buf.Len(), n)
	assert.Contains(t, buf.String(), "status=200")
	n = buf.Len()

	serveProbe(t, handler, "/readyz")
	assert.Equal(t, n, buf.Len(), "repeated 200 should be suppressed")

	// Stopped: logged again.
	serveProbe(t, handler, "/readyz")
	assert.Greater(t, buf.Len(), n)
}

func TestRequestLog_ProbePathsTrackedSeparately(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLog(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	serveProbe(t, handler, "/healthz")
	assert.Contains(t, buf.String(), "path=/healthz")

	serveProbe(t, handler, "/readyz")
	assert.Contains(t, buf.String(), "path=/readyz")
}

func TestRequestLog_NonProbePathAlwaysLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLog(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	serveProbe(t, handler, "/api/v1/status")
	firstLen := buf.Len()
	assert.Positive(t, firstLen)

	serveProbe(t, handler, "/api/v1/status")
	assert.Greater(t, buf.Len(), firstLen,
		"non-probe paths should always be logged")
}
