package metrics

import "github.com/prometheus/client_golang/prometheus"

// PortalMetrics exposes counters for authentication and scheduling flows.
type PortalMetrics struct {
	logins         *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	bookings       *prometheus.CounterVec
	claimConflicts prometheus.Counter
	transitions    *prometheus.CounterVec
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Account registrations by role and outcome",
		}, []string{"role", "outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "claim_version_conflicts_total",
			Help:      "Slot claims rejected by the optimistic version check",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.logins, m.registrations, m.bookings, m.claimConflicts, m.transitions)
	return m
}

func (m *PortalMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *PortalMetrics) ObserveRegistration(role, outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(role, outcome).Inc()
}

func (m *PortalMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *PortalMetrics) ObserveClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

func (m *PortalMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
