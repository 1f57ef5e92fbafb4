package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/modelrouter/internal/http"

// HTTPMetrics records request counts, latency and in-flight requests per
// route template.
type HTTPMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

// newHTTPMetrics leaves an instrument nil when the meter rejects it; nil
// instruments are skipped by the middleware.
func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter("modelrouter.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class."),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("http requests counter unavailable", zap.Error(err))
	}

	// Select and reward finish in well under a millisecond; execute waits on
	// a model call, hence the long tail of buckets.
	if m.latency, err = meter.Float64Histogram("modelrouter.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		logger.Warn("http latency histogram unavailable", zap.Error(err))
	}

	if m.inFlight, err = meter.Int64UpDownCounter("modelrouter.http.in_flight",
		metric.WithDescription("HTTP requests being served."),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("http in-flight gauge unavailable", zap.Error(err))
	}
	return m
}

// MetricsMiddleware records every request after the handler returns.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// routeLabel keeps label cardinality bounded: c.Path() is the registered
// template, and requests that match no route have an empty one.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
