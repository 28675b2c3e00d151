// Package metrics records session lifecycle metrics on a private prometheus
// registry. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voicedesk/internal/domain"
)

// Collector holds the session metric vectors.
type Collector struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	sessionErrors  *prometheus.CounterVec
	events         *prometheus.CounterVec
	ignored        *prometheus.CounterVec
	connectLatency prometheus.Histogram

	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session status transitions",
			},
			[]string{"from", "to"},
		),
		sessionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_errors_total",
				Help:      "Session errors surfaced to the user",
			},
			[]string{"code"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_events_total",
				Help:      "Transport events received by the controller",
			},
			[]string{"kind"},
		),
		ignored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_ignored_total",
				Help:      "User commands rejected by a status guard",
			},
			[]string{"command"},
		),
		connectLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connect_duration_seconds",
				Help:      "Time from start request to call-start",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{ErrorLog: zap.NewStdLog(c.logger)})
}

func (c *Collector) ObserveTransition(from, to domain.SessionStatus) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) ObserveError(code domain.ErrorCode) {
	if c == nil {
		return
	}
	c.sessionErrors.WithLabelValues(string(code)).Inc()
}

func (c *Collector) ObserveEvent(kind domain.EventKind) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ObserveIgnored(command string) {
	if c == nil {
		return
	}
	c.ignored.WithLabelValues(command).Inc()
}

func (c *Collector) ObserveConnectLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.connectLatency.Observe(d.Seconds())
}
