package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"game-activation-ledger/internal/domain/model"
)

// Verifier is the slice of the ledger use case the consistency job needs.
type Verifier interface {
	Verify(ctx context.Context) (*model.ConsistencyReport, error)
}

// ConsistencyWorker compares the denormalized counters with the ledger and logs
// any drift. It never repairs; an operator decides what to do with a report.
type ConsistencyWorker struct {
	ledger  Verifier
	timeout time.Duration
	log     *zerolog.Logger
}

func NewConsistencyWorker(ledger Verifier, timeout time.Duration, logger *zerolog.Logger) *ConsistencyWorker {
	if timeout <= 0 {
		timeout = time.Minute
	}
	compLog := logger.With().Str("component", "ConsistencyWorker").Logger()
	return &ConsistencyWorker{ledger: ledger, timeout: timeout, log: &compLog}
}

// RunOnce performs a single verification pass and returns the report.
func (w *ConsistencyWorker) RunOnce(ctx context.Context) (*model.ConsistencyReport, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	report, err := w.ledger.Verify(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("consistency check failed")
		return nil, err
	}
	if report.Consistent() {
		w.log.Debug().Msg("counters match ledger")
		return report, nil
	}

	ev := w.log.Warn().Int("game_drift", len(report.GameDrift)).Int("user_drift", len(report.UserDrift))
	// Keep the line bounded; the full report is available via the admin endpoint.
	if len(report.GameDrift) > 0 {
		d := report.GameDrift[0]
		ev = ev.Str("first_game", d.Key).Int("counter", d.Counter).Int("ledger", d.Ledger)
	}
	ev.Msg("counter drift detected")
	return report, nil
}
