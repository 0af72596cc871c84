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
var _ RedemptionUseCase = (*redemptionUC)(nil)

// RedemptionUseCase consumes activation codes.
type RedemptionUseCase interface {
	// Redeem turns an UNUSED code into an entitlement for userID. Expected
	// conflicts come back as *domain.RejectionError; anything else is an
	// infrastructure failure the caller may retry.
	Redeem(ctx context.Context, code, userID string) (*model.Entitlement, error)
}

type redemptionUC struct {
	codes    repository.ActivationCodeRepository
	ents     repository.EntitlementRepository
	counters repository.CounterRepository
	tm       repository.TransactionManager
	audit    adapter.AuditEmitter
	log      *zerolog.Logger
	dev      bool
	now      func() time.Time
}

func NewRedemptionUseCase(
	codes repository.ActivationCodeRepository,
	ents repository.EntitlementRepository,
	counters repository.CounterRepository,
	tm repository.TransactionManager,
	audit adapter.AuditEmitter,
	logger *zerolog.Logger,
	dev bool,
) *redemptionUC {
	if audit == nil {
		audit = adapter.NoopAuditEmitter{}
	}
	l := logger.With().Str("component", "RedemptionUC").Logger()
	return &redemptionUC{
		codes:    codes,
		ents:     ents,
		counters: counters,
		tm:       tm,
		audit:    audit,
		log:      &l,
		dev:      dev,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *redemptionUC) Redeem(ctx context.Context, code, userID string) (*model.Entitlement, error) {
	defer logging.TraceDuration(uc.log, "RedemptionUC.Redeem")()
	start := time.Now()

	userID = strings.TrimSpace(userID)
	normalized := model.NormalizeCode(code)
	if userID == "" || !model.ValidCodeFormat(normalized) {
		metrics.ObserveRedemption("invalid", time.Since(start))
		return nil, fmt.Errorf("%w: malformed activation code", domain.ErrInvalidArgument)
	}

	var ent *model.Entitlement
	var gameID string
	// Lock order is always code row, ledger index, game counter, user counter.
	err := uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		c, err := uc.codes.FindByCode(ctx, tx, normalized)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Reject(domain.ReasonNotFound, normalized, "")
			}
			return err
		}
		gameID = c.GameID
		if !c.IsUnused() {
			return domain.Reject(domain.ReasonAlreadyUsed, normalized, c.GameID)
		}

		owned, err := uc.ents.Exists(ctx, tx, userID, c.GameID)
		if err != nil {
			return err
		}
		if owned {
			return domain.Reject(domain.ReasonAlreadyOwned, normalized, c.GameID)
		}

		now := uc.now()
		if err := uc.codes.MarkActivated(ctx, tx, c.ID, userID, now); err != nil {
			if errors.Is(err, domain.ErrCodeAlreadyUsed) {
				return domain.Reject(domain.ReasonAlreadyUsed, normalized, c.GameID)
			}
			return err
		}
		if err := c.Activate(userID, now); err != nil {
			return err
		}

		e, err := model.NewCodeEntitlement(c, userID, now)
		if err != nil {
			return err
		}
		if err := uc.ents.Insert(ctx, tx, e); err != nil {
			if errors.Is(err, domain.ErrAlreadyOwned) {
				return domain.Reject(domain.ReasonAlreadyOwned, normalized, c.GameID)
			}
			return err
		}
		if err := uc.counters.Adjust(ctx, tx, userID, c.GameID, 1); err != nil {
			return err
		}
		ent = e
		return nil
	})

	log := logging.With(ctx, uc.log).With().
		Str("user_id", userID).
		Str("code", logging.Redact(normalized, uc.dev)).
		Logger()

	if rej, ok := domain.AsRejection(err); ok {
		metrics.ObserveRedemption(string(rej.Reason), time.Since(start))
		ev := model.NewAuditEvent(model.EventCodeRejected)
		ev.ActorID, ev.UserID, ev.GameID, ev.Code, ev.Reason = userID, userID, gameID, normalized, string(rej.Reason)
		uc.audit.Emit(ctx, ev)
		log.Info().Str("reason", string(rej.Reason)).Msg("redemption rejected")
		return nil, err
	}
	if err != nil {
		metrics.ObserveRedemption("error", time.Since(start))
		log.Error().Err(err).Msg("redemption failed")
		return nil, fmt.Errorf("redeem: %w", err)
	}

	metrics.ObserveRedemption("success", time.Since(start))
	ev := model.NewAuditEvent(model.EventCodeRedeemed)
	ev.ActorID, ev.UserID, ev.GameID, ev.Code = userID, userID, ent.GameID, normalized
	if ent.CodeID != nil {
		ev.CodeID = *ent.CodeID
	}
	uc.audit.Emit(ctx, ev)
	log.Info().Str("game_id", ent.GameID).Msg("code redeemed")
	return ent, nil
}
