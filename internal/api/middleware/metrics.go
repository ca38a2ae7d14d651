package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/donaldgifford/listing-watcher/internal/metrics"
)

// unmatchedRoute labels requests that matched no registered route so
// scanners probing random URLs cannot grow label cardinality.
const unmatchedRoute = "unmatched"

// metricsSkipPaths are excluded from request histograms and counters.
var metricsSkipPaths = map[string]struct{}{
	"/metrics": {},
	"/healthz": {},
	"/readyz":  {},
}

// healthGauges maps probe paths to a 0/1 up gauge.
var healthGauges = map[string]prometheus.Gauge{
	"/healthz": metrics.HealthzUp,
	"/readyz":  metrics.ReadyzUp,
}

// Metrics returns Echo middleware that records request duration and status
// by route template. Probe paths only update their up gauges.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeLabel(c)

			if _, skip := metricsSkipPaths[route]; skip {
				err := next(c)
				updateHealthGauge(route, c.Response().Status)
				return err
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			labels := []string{c.Request().Method, route, strconv.Itoa(status)}

			metrics.HTTPRequestDuration.
				WithLabelValues(labels...).
				Observe(time.Since(start).Seconds())
			metrics.HTTPRequestsTotal.
				WithLabelValues(labels...).
				Inc()

			return err
		}
	}
}

func routeLabel(c echo.Context) string {
	path := c.Path()
	if path != "" && path != "/*" {
		return path
	}
	if _, probe := metricsSkipPaths[c.Request().URL.Path]; probe {
		return c.Request().URL.Path
	}
	return unmatchedRoute
}

func updateHealthGauge(path string, status int) {
	gauge, ok := healthGauges[path]
	if !ok {
		return
	}
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}
