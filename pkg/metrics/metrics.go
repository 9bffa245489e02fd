// Package metrics provides Prometheus observability for authorization
// processing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/types"
)

// Metrics holds the collectors for the authorization service.
type Metrics struct {
	// Operation outcomes by operation and result code
	Operations *prometheus.CounterVec

	// End-to-end operation latency including the store commit
	OperationLatency *prometheus.HistogramVec

	// Post-commit events by kind
	EventsPublished *prometheus.CounterVec

	// HTTP request latency by route and status code
	RequestLatency *prometheus.HistogramVec
}

var _ engine.Recorder = (*Metrics)(nil)

// New creates a Metrics instance registered with the default Prometheus
// registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a Metrics instance registered with reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrail_operations_total",
			Help: "Total authorization operations by operation and outcome code",
		}, []string{"operation", "outcome"}), // operation: "transfer", "receive", "cancel"

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrail_operation_duration_seconds",
			Help:    "Duration of authorization operations including the store commit",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"operation"}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrail_events_published_total",
			Help: "Total post-commit events by kind",
		}, []string{"kind"}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrail_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status code",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "code"}),
	}
}

// ObserveOperation records one engine operation outcome.
func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())
	}
}

// EventSink returns a sink that counts published events by kind. Wire it
// into the engine's event fan-out alongside the consumer sinks.
func (m *Metrics) EventSink() events.Sink {
	return &eventSink{metrics: m}
}

type eventSink struct {
	metrics *Metrics
}

func (s *eventSink) Publish(event types.Event) {
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(string(event.Kind)).Inc()
	}
}
