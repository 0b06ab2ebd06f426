package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes reminder sweep counters. All methods are safe on a nil
// receiver so sweeps can run without a registry.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridalos",
			Subsystem: "reminders",
			Name:      "notifications_total",
			Help:      "Reminder notifications by sweep kind and outcome (sent, failed, skipped)",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridalos",
			Subsystem: "reminders",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one reminder sweep",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bridalos",
			Subsystem: "reminders",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep finished",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomes, m.duration, m.lastRun)
	return m
}

func (m *Metrics) Sent(kind string)    { m.inc(kind, "sent") }
func (m *Metrics) Failed(kind string)  { m.inc(kind, "failed") }
func (m *Metrics) Skipped(kind string) { m.inc(kind, "skipped") }

func (m *Metrics) inc(kind, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveSweep(kind string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(kind).Observe(finished.Sub(started).Seconds())
	m.lastRun.WithLabelValues(kind).Set(float64(finished.Unix()))
}
