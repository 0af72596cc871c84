package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(entitlementCacheLookups) }

var entitlementCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entitlement_cache_lookups_total",
		Help: "Ownership answers served from or written to the entitlement cache.",
	},
	// 'hit', 'miss', 'error', and 'fill_skipped' when a revoke fenced the fill out
	[]string{"result"},
)

func IncEntitlementCache(result string) {
	entitlementCacheLookups.WithLabelValues(norm(result)).Inc()
}
