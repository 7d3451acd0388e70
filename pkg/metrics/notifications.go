package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics counts email deliveries by kind and outcome.
type NotificationMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewNotificationMetrics registers the notification metrics on the provided registerer.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries by kind and outcome (sent, failed, dropped).",
	}, []string{"kind", "outcome"})
	reg.MustRegister(deliveries)
	return &NotificationMetrics{deliveries: deliveries}
}

// Observe records one delivery attempt.
func (m *NotificationMetrics) Observe(kind, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
