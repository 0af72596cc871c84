package sched

import (
	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/infra/metrics"
)

// PoolStater is satisfied by *pgxpool.Pool.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

// RecordPoolStats copies the pool gauges into prometheus.
func RecordPoolStats(p PoolStater) {
	s := p.Stat()
	metrics.SetPgPoolConns(s.MaxConns(), s.TotalConns(), s.IdleConns(), s.AcquiredConns())
}
