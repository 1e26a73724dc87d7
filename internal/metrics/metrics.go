// Package metrics holds the Prometheus collectors for the queue engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	bookings         *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	reconcilerSweeps prometheus.Counter
	reconcilerMissed prometheus.Counter
	reconcilerErrors prometheus.Counter
	busEvents        *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bookings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_bookings_total",
				Help: "Booking attempts by result",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_transitions_total",
				Help: "Status transition attempts by target status and result",
			},
			[]string{"to", "result"},
		),
		reconcilerSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_reconciler_sweeps_total",
			Help: "Completed missed-appointment sweeps",
		}),
		reconcilerMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_reconciler_missed_total",
			Help: "Appointments marked missed by the reconciler",
		}),
		reconcilerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_reconciler_errors_total",
			Help: "Candidates the reconciler failed to transition",
		}),
		busEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_bus_events_total",
				Help: "Events published on the notification bus by kind",
			},
			[]string{"kind"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinic_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bookings, m.transitions,
		m.reconcilerSweeps, m.reconcilerMissed, m.reconcilerErrors,
		m.busEvents, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Booking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, result).Inc()
}

func (m *Metrics) Sweep(missed, errs int) {
	if m == nil {
		return
	}
	m.reconcilerSweeps.Inc()
	m.reconcilerMissed.Add(float64(missed))
	m.reconcilerErrors.Add(float64(errs))
}

func (m *Metrics) BusEvent(kind string) {
	if m == nil {
		return
	}
	m.busEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}
