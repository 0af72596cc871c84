package adapter

import (
	"context"

	"game-activation-ledger/internal/domain/model"
)

// AuditEmitter receives one event per state transition. Implementations must be
// non-blocking and best-effort: Emit never fails the caller.
type AuditEmitter interface {
	Emit(ctx context.Context, ev model.AuditEvent)
}

// NoopAuditEmitter discards events.
type NoopAuditEmitter struct{}

func (NoopAuditEmitter) Emit(context.Context, model.AuditEvent) {}
