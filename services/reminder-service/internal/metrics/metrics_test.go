package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Sent("appointment")
	m.Sent("appointment")
	m.Failed("payment")
	m.Skipped("appointment")

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("appointment", "sent")); got != 2 {
		t.Fatalf("sent = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("payment", "failed")); got != 1 {
		t.Fatalf("failed = %v", got)
	}

	finished := time.Unix(1717243200, 0)
	m.ObserveSweep("appointment", finished.Add(-2*time.Second), finished)
	if got := testutil.ToFloat64(m.lastRun.WithLabelValues("appointment")); got != 1717243200 {
		t.Fatalf("last run = %v", got)
	}
}

func TestNilReceiver(t *testing.T) {
	var m *Metrics
	m.Sent("appointment")
	m.ObserveSweep("appointment", time.Now(), time.Now())
}
