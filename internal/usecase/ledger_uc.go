package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/adapter"
	"game-activation-ledger/internal/domain/ports/repository"
	"game-activation-ledger/internal/infra/logging"
	"game-activation-ledger/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase is the query surface of the entitlement ledger plus the
// administrative grant/revoke path.
type LedgerUseCase interface {
	HasEntitlement(ctx context.Context, userID, gameID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Entitlement, error)
	ListByGame(ctx context.Context, gameID string) ([]*model.Entitlement, error)
	// CheckAccess answers for a principal; administrators always pass.
	CheckAccess(ctx context.Context, p model.Principal, gameID string) (bool, error)
	Counters(ctx context.Context, userID, gameID string) (userCount, gameCount int, err error)
	Grant(ctx context.Context, userID, gameID, actorID string) (*model.Entitlement, error)
	Revoke(ctx context.Context, userID, gameID, actorID string) error
	// Verify compares the denormalized counters with the ledger. It never repairs.
	Verify(ctx context.Context) (*model.ConsistencyReport, error)
}

type ledgerUC struct {
	ents     repository.EntitlementRepository
	counters repository.CounterRepository
	games    repository.GameRepository
	tm       repository.TransactionManager
	cache    repository.EntitlementCache
	audit    adapter.AuditEmitter
	log      *zerolog.Logger
	now      func() time.Time
}

func NewLedgerUseCase(
	ents repository.EntitlementRepository,
	counters repository.CounterRepository,
	games repository.GameRepository,
	tm repository.TransactionManager,
	cache repository.EntitlementCache,
	audit adapter.AuditEmitter,
	logger *zerolog.Logger,
) *ledgerUC {
	if audit == nil {
		audit = adapter.NoopAuditEmitter{}
	}
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{
		ents:     ents,
		counters: counters,
		games:    games,
		tm:       tm,
		cache:    cache,
		audit:    audit,
		log:      &l,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: user and game ids are required", domain.ErrInvalidArgument)
		}
	}
	return nil
}

func (uc *ledgerUC) HasEntitlement(ctx context.Context, userID, gameID string) (bool, error) {
	if err := requireIDs(userID, gameID); err != nil {
		return false, err
	}
	// The generation is read before the ledger so a revoke that commits in
	// between makes the fill a no-op.
	fill := false
	var gen int64
	if uc.cache != nil {
		hit, g, err := uc.cache.Lookup(ctx, userID, gameID)
		switch {
		case err != nil:
			uc.log.Debug().Err(err).Msg("entitlement cache read failed, falling back to ledger")
		case hit:
			return true, nil
		default:
			fill, gen = true, g
		}
	}

	ok, err := uc.ents.Exists(ctx, nil, userID, gameID)
	if err != nil {
		return false, err
	}
	if ok && fill {
		if err := uc.cache.Fill(ctx, userID, gameID, gen); err != nil {
			uc.log.Debug().Err(err).Msg("entitlement cache write failed")
		}
	}
	return ok, nil
}

func (uc *ledgerUC) ListByUser(ctx context.Context, userID string) ([]*model.Entitlement, error) {
	if err := requireIDs(userID); err != nil {
		return nil, err
	}
	return uc.ents.ListByUser(ctx, nil, userID)
}

func (uc *ledgerUC) ListByGame(ctx context.Context, gameID string) ([]*model.Entitlement, error) {
	if err := requireIDs(gameID); err != nil {
		return nil, err
	}
	return uc.ents.ListByGame(ctx, nil, gameID)
}

func (uc *ledgerUC) CheckAccess(ctx context.Context, p model.Principal, gameID string) (bool, error) {
	if p.IsAdmin() {
		return true, nil
	}
	return uc.HasEntitlement(ctx, p.UserID, gameID)
}

func (uc *ledgerUC) Counters(ctx context.Context, userID, gameID string) (int, int, error) {
	var userCount, gameCount int
	var err error
	if userID != "" {
		if userCount, err = uc.counters.UserCount(ctx, nil, userID); err != nil {
			return 0, 0, err
		}
	}
	if gameID != "" {
		if gameCount, err = uc.counters.GameCount(ctx, nil, gameID); err != nil {
			return 0, 0, err
		}
	}
	return userCount, gameCount, nil
}

func (uc *ledgerUC) Grant(ctx context.Context, userID, gameID, actorID string) (*model.Entitlement, error) {
	defer logging.TraceDuration(uc.log, "LedgerUC.Grant")()

	userID, gameID = strings.TrimSpace(userID), strings.TrimSpace(gameID)
	if err := requireIDs(userID, gameID); err != nil {
		return nil, err
	}

	var ent *model.Entitlement
	err := uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		missing, err := uc.games.MissingIDs(ctx, tx, []string{gameID})
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return domain.ErrGameNotFound
		}
		owned, err := uc.ents.Exists(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		if owned {
			return domain.Reject(domain.ReasonAlreadyOwned, "", gameID)
		}
		e, err := model.NewAdminEntitlement(userID, gameID, actorID, uc.now())
		if err != nil {
			return err
		}
		if err := uc.ents.Insert(ctx, tx, e); err != nil {
			if errors.Is(err, domain.ErrAlreadyOwned) {
				return domain.Reject(domain.ReasonAlreadyOwned, "", gameID)
			}
			return err
		}
		if err := uc.counters.Adjust(ctx, tx, userID, gameID, 1); err != nil {
			return err
		}
		ent = e
		return nil
	})
	if err != nil {
		metrics.IncEntitlementAdminOp("grant", resultLabel(err))
		return nil, err
	}

	metrics.IncEntitlementAdminOp("grant", "ok")
	ev := model.NewAuditEvent(model.EventEntitlementGranted)
	ev.ActorID, ev.UserID, ev.GameID = actorID, userID, gameID
	uc.audit.Emit(ctx, ev)
	logging.With(ctx, uc.log).Info().Str("user", userID).Str("game_id", gameID).Str("actor", actorID).Msg("entitlement granted")
	return ent, nil
}

func (uc *ledgerUC) Revoke(ctx context.Context, userID, gameID, actorID string) error {
	defer logging.TraceDuration(uc.log, "LedgerUC.Revoke")()

	userID, gameID = strings.TrimSpace(userID), strings.TrimSpace(gameID)
	if err := requireIDs(userID, gameID); err != nil {
		return err
	}

	// Cached positives are fenced off before the row goes away; a revoke that
	// cannot set the fence is refused.
	if uc.cache != nil {
		if err := uc.cache.BeginRevoke(ctx, userID, gameID); err != nil {
			metrics.IncEntitlementAdminOp("revoke", "error")
			return fmt.Errorf("revoke: fence entitlement cache: %w", err)
		}
		defer uc.endRevoke(context.WithoutCancel(ctx), userID, gameID)
	}

	var removed *model.Entitlement
	err := uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		e, err := uc.ents.Delete(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		if err := uc.counters.Adjust(ctx, tx, userID, gameID, -1); err != nil {
			return err
		}
		removed = e
		return nil
	})
	if err != nil {
		metrics.IncEntitlementAdminOp("revoke", resultLabel(err))
		return err
	}

	metrics.IncEntitlementAdminOp("revoke", "ok")
	ev := model.NewAuditEvent(model.EventEntitlementRevoked)
	ev.ActorID, ev.UserID, ev.GameID = actorID, userID, gameID
	ev.Metadata = map[string]string{"source": string(removed.Source)}
	if removed.Code != nil {
		ev.Code = *removed.Code
	}
	if removed.CodeID != nil {
		ev.CodeID = *removed.CodeID
	}
	uc.audit.Emit(ctx, ev)
	logging.With(ctx, uc.log).Info().Str("user", userID).Str("game_id", gameID).Str("actor", actorID).Msg("entitlement revoked")
	return nil
}

func (uc *ledgerUC) Verify(ctx context.Context) (*model.ConsistencyReport, error) {
	defer logging.TraceDuration(uc.log, "LedgerUC.Verify")()

	report := &model.ConsistencyReport{}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := uc.tm.WithTx(ctx, opts, func(ctx context.Context, tx repository.Tx) error {
		byGame, byUser, err := uc.ents.Tally(ctx, tx)
		if err != nil {
			return err
		}
		gameCnt, userCnt, err := uc.counters.Snapshot(ctx, tx)
		if err != nil {
			return err
		}
		report.GameDrift = model.CompareCounters(gameCnt, byGame)
		report.UserDrift = model.CompareCounters(userCnt, byUser)
		return nil
	})
	if err != nil {
		metrics.IncConsistencyRun("error")
		return nil, fmt.Errorf("verify ledger: %w", err)
	}
	report.CheckedAt = uc.now()
	if report.GameDrift == nil {
		report.GameDrift = []model.CounterDrift{}
	}
	if report.UserDrift == nil {
		report.UserDrift = []model.CounterDrift{}
	}

	metrics.SetCounterDrift(len(report.GameDrift), len(report.UserDrift))
	if report.Consistent() {
		metrics.IncConsistencyRun("consistent")
	} else {
		metrics.IncConsistencyRun("drift")
	}
	return report, nil
}

// endRevoke lifts the fill hold. On failure the hold simply expires.
func (uc *ledgerUC) endRevoke(ctx context.Context, userID, gameID string) {
	if err := uc.cache.EndRevoke(ctx, userID, gameID); err != nil {
		uc.log.Warn().Err(err).Str("user", userID).Str("game_id", gameID).Msg("entitlement cache hold release failed")
	}
}

func resultLabel(err error) string {
	if rej, ok := domain.AsRejection(err); ok {
		return string(rej.Reason)
	}
	switch {
	case errors.Is(err, domain.ErrEntitlementNotFound), errors.Is(err, domain.ErrGameNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	}
	return "error"
}
