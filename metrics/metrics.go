// Package metrics exposes the Prometheus collectors of the upload client and the submission server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures collector registration.
type Config struct {
	// Namespace is the metrics namespace (default: "productshot").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func newConfig(opts []Option) Config {
	cfg := Config{
		Namespace: "productshot",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Uploads tracks the dispatcher. A nil *Uploads records nothing.
type Uploads struct {
	pending  prometheus.Gauge
	inFlight prometheus.Gauge
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewUploads registers the dispatcher collectors.
func NewUploads(opts ...Option) *Uploads {
	cfg := newConfig(opts)
	factory := promauto.With(cfg.Registry)
	return &Uploads{
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatcher",
			Name:      "pending_tasks",
			Help:      "Upload tasks waiting for admission",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatcher",
			Name:      "in_flight_tasks",
			Help:      "Upload requests currently in flight",
		}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatcher",
			Name:      "results_total",
			Help:      "Terminal upload results by category and outcome",
		}, []string{"category", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatcher",
			Name:      "upload_duration_seconds",
			Help:      "Time from admission to terminal event",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"category"}),
	}
}

// SetQueue records the current queue depth and in-flight count.
func (m *Uploads) SetQueue(pending, inFlight int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.inFlight.Set(float64(inFlight))
}

// Observe records one terminal result.
func (m *Uploads) Observe(category string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.results.WithLabelValues(category, outcome).Inc()
	m.duration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// Server tracks the submission server.
type Server struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	images   *prometheus.CounterVec
}

// NewServer registers the server collectors.
func NewServer(opts ...Option) *Server {
	cfg := newConfig(opts)
	factory := promauto.With(cfg.Registry)
	return &Server{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		images: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "images",
			Name:      "events_total",
			Help:      "Stored and deleted images by category",
		}, []string{"category", "event"}),
	}
}

// Middleware records every request against its route template.
func (m *Server) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ImageStored counts a stored image.
func (m *Server) ImageStored(category string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(category, "stored").Inc()
}

// ImageDeleted counts a deleted image.
func (m *Server) ImageDeleted(category string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(category, "deleted").Inc()
}
