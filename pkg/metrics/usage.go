package metrics

import "github.com/prometheus/client_golang/prometheus"

// EntitlementMetrics counts gate decisions and recorded metered actions.
type EntitlementMetrics struct {
	decisions  *prometheus.CounterVec
	increments *prometheus.CounterVec
}

// NewEntitlementMetrics registers the entitlement metrics on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Entitlement gate decisions by plan and outcome.",
	}, []string{"plan", "outcome"})
	increments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_increments_total",
		Help: "Metered actions recorded on the usage ledger.",
	}, []string{"action"})
	reg.MustRegister(decisions, increments)
	return &EntitlementMetrics{decisions: decisions, increments: increments}
}

// ObserveDecision records an allow/deny outcome for the plan.
func (m *EntitlementMetrics) ObserveDecision(plan string, allowed bool) {
	if m == nil || m.decisions == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions.WithLabelValues(normalizeLabel(plan), outcome).Inc()
}

// IncUsage records a metered action.
func (m *EntitlementMetrics) IncUsage(action string) {
	if m == nil || m.increments == nil {
		return
	}
	m.increments.WithLabelValues(normalizeLabel(action)).Inc()
}
