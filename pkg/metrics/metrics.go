// Package metrics exposes prometheus counters for map interaction
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Gesture kinds
const (
	GesturePan    = "pan"
	GestureScale  = "scale"
	GestureToggle = "toggle"
	GestureInfo   = "info"
	GestureReset  = "reset"
)

// Metrics groups the collectors of one session host
type Metrics struct {
	gestures      *prometheus.CounterVec
	queries       *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	renderSeconds prometheus.Histogram
}

// New registers the collectors on reg. A nil reg gives unregistered
// collectors, handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gestures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "touchmap",
			Name:      "gesture_total",
			Help:      "Total gestures applied to the map",
		}, []string{"kind"}),

		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "touchmap",
			Name:      "query_total",
			Help:      "Total information queries by outcome",
		}, []string{"outcome"}),

		backendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "touchmap",
			Subsystem: "query",
			Name:      "backend_errors_total",
			Help:      "Total layer queries that failed and were skipped",
		}, []string{"layer"}),

		renderSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "touchmap",
			Name:      "render_duration_seconds",
			Help:      "Duration of map renders",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// Gesture counts one gesture of kind
func (m *Metrics) Gesture(kind string) {
	if m == nil {
		return
	}
	m.gestures.WithLabelValues(kind).Inc()
}

// Query counts one query and the layers that failed during it
func (m *Metrics) Query(outcome string, failed []string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	for _, layer := range failed {
		m.backendErrors.WithLabelValues(layer).Inc()
	}
}

// ObserveRender records the duration of a render started at start
func (m *Metrics) ObserveRender(start time.Time) {
	if m == nil {
		return
	}
	m.renderSeconds.Observe(time.Since(start).Seconds())
}

// Handler returns a Fiber handler serving the metrics gathered by g
func Handler(g prometheus.Gatherer) fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// NewServer returns an app exposing /metrics and /health
func NewServer(g prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", Handler(g))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}
