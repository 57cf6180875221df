// Package metrics exports Prometheus metrics fed by telemetry events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
)

// Metrics holds the transport's collectors.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	operationErrors   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	abortedTotal      prometheus.Counter
	streamsActive     prometheus.Gauge
	streamsRejected   prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlhttp",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gqlhttp",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlhttp",
				Name:      "operations_total",
				Help:      "Total number of GraphQL operations by type",
			},
			[]string{"type", "stream"},
		),
		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlhttp",
				Name:      "operation_errors_total",
				Help:      "Total number of GraphQL errors returned by the engine",
			},
			[]string{"type"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gqlhttp",
				Name:      "operation_duration_seconds",
				Help:      "Time spent in the engine per operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		abortedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gqlhttp",
			Name:      "requests_aborted_total",
			Help:      "Requests abandoned by the client before completion",
		}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gqlhttp",
			Name:      "event_streams_active",
			Help:      "Open multiplexed event streams",
		}),
		streamsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gqlhttp",
			Name:      "event_streams_rejected_total",
			Help:      "Stream reservations refused because the token was taken",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.operationsTotal,
		m.operationErrors,
		m.operationDuration,
		m.abortedTotal,
		m.streamsActive,
		m.streamsRejected,
	)
	return m
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Subscribe feeds the collectors from the global bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	subs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.requestsTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.requestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.OperationFinish) {
			m.operationsTotal.WithLabelValues(e.OperationType, strconv.FormatBool(e.Stream)).Inc()
			if n := len(e.Errors); n > 0 {
				m.operationErrors.WithLabelValues(e.OperationType).Add(float64(n))
			}
			m.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(context.Context, events.RequestAborted) { m.abortedTotal.Inc() }),
		eventbus.Subscribe(func(context.Context, events.StreamReserved) { m.streamsActive.Inc() }),
		eventbus.Subscribe(func(context.Context, events.StreamClosed) { m.streamsActive.Dec() }),
		eventbus.Subscribe(func(context.Context, events.StreamRejected) { m.streamsRejected.Inc() }),
	}
	return func() {
		for _, u := range subs {
			u()
		}
	}
}
