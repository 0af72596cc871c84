package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(entitlementAdminOps, counterDrift, consistencyRuns) }

var (
	entitlementAdminOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_admin_ops_total",
			Help: "Manual entitlement changes, labeled by op and result.",
		},
		[]string{"op", "result"}, // op: 'grant', 'revoke'
	)

	counterDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_counter_drift",
			Help: "Number of counters that disagree with the ledger at the last check.",
		},
		[]string{"scope"}, // 'game', 'user'
	)

	consistencyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_consistency_checks_total",
			Help: "Consistency check runs, labeled by result.",
		},
		[]string{"result"}, // 'consistent', 'drift', 'error'
	)
)

func IncEntitlementAdminOp(op, result string) {
	entitlementAdminOps.WithLabelValues(norm(op), norm(result)).Inc()
}

func SetCounterDrift(games, users int) {
	counterDrift.WithLabelValues("game").Set(float64(games))
	counterDrift.WithLabelValues("user").Set(float64(users))
}

func IncConsistencyRun(result string) {
	consistencyRuns.WithLabelValues(norm(result)).Inc()
}
