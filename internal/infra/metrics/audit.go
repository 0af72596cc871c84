package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(auditEventsTotal) }

var auditEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_events_total",
		Help: "Audit events by type and delivery result.",
	},
	[]string{"type", "result"}, // result: 'emitted', 'dropped', 'failed'
)

func IncAuditEvent(eventType, result string) {
	auditEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}
