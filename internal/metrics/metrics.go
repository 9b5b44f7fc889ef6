// Package metrics exposes kiosk counters on a private Prometheus registry.
package metrics

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/romkiosk/internal/models"
)

// Metrics holds the kiosk collectors.
type Metrics struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	fps             prometheus.Gauge
	resets          *prometheus.CounterVec
	completed       *prometheus.CounterVec
	persistFailures prometheus.Counter
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkiosk_frames_total",
			Help: "Tracking results by outcome.",
		}, []string{"outcome"}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "romkiosk_fps",
			Help: "Frame rate measured on the last tracking result.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkiosk_resets_total",
			Help: "Experience resets by reason.",
		}, []string{"reason"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkiosk_exercises_completed_total",
			Help: "Completed exercises by type.",
		}, []string{"type"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "romkiosk_persist_failures_total",
			Help: "Results or registrations that could not be stored.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkiosk_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "romkiosk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.frames, m.fps, m.resets, m.completed, m.persistFailures, m.requests, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Frame counts one tracking result.
func (m *Metrics) Frame(outcome string) {
	m.frames.WithLabelValues(outcome).Inc()
}

// SetFPS records the current frame rate.
func (m *Metrics) SetFPS(fps float64) {
	m.fps.Set(fps)
}

// Reset counts an experience reset.
func (m *Metrics) Reset(reason string) {
	if reason == "" {
		reason = "manual"
	}
	m.resets.WithLabelValues(reason).Inc()
}

// Completed counts a finished exercise.
func (m *Metrics) Completed(t models.ExerciseType) {
	m.completed.WithLabelValues(string(t)).Inc()
}

// Middleware records request counts and latency. Routes are labelled by
// their chi pattern to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes the websocket upgrade through to the underlying writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type persister interface {
	SaveResult(ctx context.Context, row models.ResultRow) error
	RegisterUser(ctx context.Context, key, state string) error
}

// CountingPersister counts failures of the wrapped persister.
type CountingPersister struct {
	Next    persister
	Metrics *Metrics
}

func (p CountingPersister) SaveResult(ctx context.Context, row models.ResultRow) error {
	err := p.Next.SaveResult(ctx, row)
	if err != nil {
		p.Metrics.persistFailures.Inc()
	}
	return err
}

func (p CountingPersister) RegisterUser(ctx context.Context, key, state string) error {
	err := p.Next.RegisterUser(ctx, key, state)
	if err != nil {
		p.Metrics.persistFailures.Inc()
	}
	return err
}
