package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMiddleware holds the HTTP and media streaming metrics.
type PrometheusMiddleware struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streams         *prometheus.CounterVec
	streamBytes     *prometheus.CounterVec
}

// NewPrometheusMiddleware creates the collectors and registers them with reg.
func NewPrometheusMiddleware(reg prometheus.Registerer) (*PrometheusMiddleware, error) {
	m := &PrometheusMiddleware{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Time until the handler returned. Streamed bodies are not included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		streams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_streams_total",
				Help: "Media responses that finished streaming, by outcome.",
			},
			[]string{"outcome"},
		),
		streamBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_stream_bytes_total",
				Help: "Media body bytes written to clients, by outcome.",
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.requestCount, m.requestDuration, m.streams, m.streamBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler returns the fiber middleware handler.
func (m *PrometheusMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Exclude /metrics from being counted
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		// Use the route pattern (e.g. /videos/*) so label cardinality stays bounded
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		m.requestCount.WithLabelValues(
			c.Method(),
			path,
			strconv.Itoa(responseStatus(c, err)),
		).Inc()
		m.requestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())

		return err
	}
}

// ObserveStream records one finished media body.
func (m *PrometheusMiddleware) ObserveStream(outcome string, bytes int64) {
	m.streams.WithLabelValues(outcome).Inc()
	m.streamBytes.WithLabelValues(outcome).Add(float64(bytes))
}

// responseStatus is the status the client will see once the global error handler has run.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
