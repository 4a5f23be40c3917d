package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPortalMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPortalMetrics(reg)

	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveBooking("slot_conflict")
	m.ObserveClaimConflict()
	m.ObserveTransition("pending", "confirmed")

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("created")); got != 2 {
		t.Fatalf("created bookings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.claimConflicts); got != 1 {
		t.Fatalf("claim conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "confirmed")); got != 1 {
		t.Fatalf("transitions = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PortalMetrics
	m.ObserveLogin("ok")
	m.ObserveRegistration("patient", "ok")
	m.ObserveBooking("created")
	m.ObserveClaimConflict()
	m.ObserveTransition("pending", "canceled")
}
