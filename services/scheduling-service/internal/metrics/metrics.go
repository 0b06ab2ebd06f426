package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduling counters. All methods are safe on a nil receiver.
type Metrics struct {
	bookings    *prometheus.CounterVec
	conflicts   prometheus.Counter
	transitions *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridalos",
			Subsystem: "scheduling",
			Name:      "appointment_writes_total",
			Help:      "Appointment mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridalos",
			Subsystem: "scheduling",
			Name:      "booking_conflicts_total",
			Help:      "Bookings rejected because the slot overlaps an existing appointment",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridalos",
			Subsystem: "scheduling",
			Name:      "request_transitions_total",
			Help:      "Appointment request state transitions",
		}, []string{"to"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridalos",
			Subsystem: "scheduling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.conflicts, m.transitions, m.httpLatency)
	return m
}

// ObserveWrite records an appointment mutation; operation is book,
// reschedule, status or delete.
func (m *Metrics) ObserveWrite(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.bookings.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// ObserveHTTP matches httpx.ObserveFunc. Paths are left out of the labels to
// keep cardinality bounded.
func (m *Metrics) ObserveHTTP(method, _ string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
