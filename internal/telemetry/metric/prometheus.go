package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "kinetic"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAborted = "aborted"
)

// Registry holds the simulator metrics and the Prometheus registry they
// are registered with.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ConnectionsActive  prometheus.Gauge
	ACLUpdatesTotal    *prometheus.CounterVec
	BatchesTotal       *prometheus.CounterVec
	SequenceRejections prometheus.Counter
}

// NewRegistry creates a registry with the simulator metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by message type and response status.",
		}, []string{"type", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency by message type.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"type"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_active",
			Help:      "Open client connections.",
		}),
		ACLUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "acl_updates_total",
			Help:      "Security updates by result.",
		}, []string{"result"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Finished batches by result.",
		}, []string{"result"}),
		SequenceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sequence_rejections_total",
			Help:      "Requests rejected for a non-increasing sequence number.",
		}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.ConnectionsActive,
		r.ACLUpdatesTotal,
		r.BatchesTotal,
		r.SequenceRejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registerer returns the underlying registerer for components that add
// their own metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveRequest records one handled request.
func (r *Registry) ObserveRequest(msgType, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(msgType, status).Inc()
	r.RequestDuration.WithLabelValues(msgType).Observe(d.Seconds())
}

// ConnOpened increments the active connection gauge.
func (r *Registry) ConnOpened() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Inc()
}

// ConnClosed decrements the active connection gauge.
func (r *Registry) ConnClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

// ACLUpdate records a security update result.
func (r *Registry) ACLUpdate(result string) {
	if r == nil {
		return
	}
	r.ACLUpdatesTotal.WithLabelValues(result).Inc()
}

// Batch records a finished batch.
func (r *Registry) Batch(result string) {
	if r == nil {
		return
	}
	r.BatchesTotal.WithLabelValues(result).Inc()
}

// SequenceRejected counts a rejected sequence number.
func (r *Registry) SequenceRejected() {
	if r == nil {
		return
	}
	r.SequenceRejections.Inc()
}
