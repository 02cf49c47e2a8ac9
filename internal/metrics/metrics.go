// Package metrics provides Prometheus instrumentation for the quote engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts decision passes run.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_ticks_total",
		Help: "Total number of ticks processed",
	})

	// TickLatency tracks the wall time of one decision pass.
	TickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_engine_tick_latency_seconds",
		Help:    "Decision pass latency in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	// DecisionsTotal counts per-product decisions by selected mode.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_decisions_total",
		Help: "Per-product decisions by mode",
	}, []string{"product", "mode"})

	// OrdersTotal counts emitted orders.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_orders_total",
		Help: "Orders emitted",
	}, []string{"product", "mode", "side"})

	// OrderVolume tracks cumulative absolute quantity emitted.
	OrderVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_order_volume_total",
		Help: "Cumulative emitted order quantity",
	}, []string{"product", "side"})

	// SkippedTotal counts products skipped for a missing or one-sided book.
	SkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_skipped_total",
		Help: "Products skipped without a two-sided book",
	}, []string{"product"})

	// FairValue is the latest fair value per product.
	FairValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quote_engine_fair_value",
		Help: "Latest fair value estimate",
	}, []string{"product"})

	// Threshold is the latest deviation threshold per product.
	Threshold = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quote_engine_threshold",
		Help: "Latest deviation threshold",
	}, []string{"product"})

	// Position is the latest reported position per product.
	Position = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quote_engine_position",
		Help: "Latest reported net position",
	}, []string{"product"})

	// PersistenceErrors counts failed checkpoint or journal writes.
	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_persistence_errors_total",
		Help: "Failed store writes",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by the matched chi pattern so product names in the
// URL do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack is required by the WebSocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
