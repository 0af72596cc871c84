package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/domain/model"
)

// PostgresAuditRepo appends audit events. It is written to outside the ledger
// transactions; a failed insert never affects the operation being audited.
type PostgresAuditRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{pool: pool}
}

func (r *PostgresAuditRepo) Append(ctx context.Context, ev model.AuditEvent) error {
	const q = `
INSERT INTO audit_events (id, type, actor_id, user_id, game_id, code_id, code, batch_tag, reason, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING;
`
	var meta interface{}
	if len(ev.Metadata) > 0 {
		meta = ev.Metadata
	}
	_, err := r.pool.Exec(ctx, q,
		ev.ID, string(ev.Type), ev.ActorID, ev.UserID, ev.GameID, ev.CodeID, ev.Code, ev.BatchTag, ev.Reason, meta, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
