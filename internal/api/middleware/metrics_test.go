package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/donaldgifford/listing-watcher/internal/api/middleware"
	"github.com/donaldgifford/listing-watcher/internal/metrics"
)

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		route      string
		target     string
		handler    echo.HandlerFunc
		wantStatus int
		wantLabel  string
	}{
		{
			name:   "records route template",
			route:  "/api/v1/status",
			target: "/api/v1/status",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"state": "cycling"})
			},
			wantStatus: http.StatusOK,
			wantLabel:  "/api/v1/status",
		},
		{
			name:   "records handler error code",
			route:  "/api/v1/events",
			target: "/api/v1/events",
			handler: func(_ echo.Context) error {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, "bad limit")
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantLabel:  "/api/v1/events",
		},
		{
			name:   "collapses unknown paths",
			route:  "/api/v1/status",
			target: "/wp-login.php",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			},
			wantStatus: http.StatusNotFound,
			wantLabel:  "unmatched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(mw.Metrics())
			e.GET(tt.route, tt.handler)

			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			labels := []string{http.MethodGet, tt.wantLabel, strconv.Itoa(tt.wantStatus)}

			assert.Positive(t, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(labels...)))

			observer, err := metrics.HTTPRequestDuration.GetMetricWithLabelValues(labels...)
			require.NoError(t, err)

			hm := &io_prometheus_client.Metric{}
			require.NoError(t, observer.(prometheus.Metric).Write(hm))
			assert.Positive(t, hm.GetHistogram().GetSampleCount())
		})
	}
}

func TestMetricsMiddleware_ReadyzGauge(t *testing.T) {
	ready := false
	e := echo.New()
	e.Use(mw.Metrics())
	e.GET("/readyz", func(c echo.Context) error {
		if ready {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})

	serve := func() {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	}

	serve()
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ReadyzUp), 0)

	ready = true
	serve()
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ReadyzUp), 0)
}
