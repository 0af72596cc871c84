package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo, pgPoolConns) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_build_info",
			Help: "Always 1; labels carry the running ledger build.",
		},
		[]string{"version", "commit"},
	)

	pgPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_pg_pool_connections",
			Help: "Postgres connections held by the ledger pool at the last sample.",
		},
		[]string{"state"}, // 'max', 'open', 'idle', 'acquired'
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetPgPoolConns is sampled by the scheduler; acquired connections are
// in-flight transactions, redemptions included.
func SetPgPoolConns(max, open, idle, acquired int32) {
	pgPoolConns.WithLabelValues("max").Set(float64(max))
	pgPoolConns.WithLabelValues("open").Set(float64(open))
	pgPoolConns.WithLabelValues("idle").Set(float64(idle))
	pgPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}
