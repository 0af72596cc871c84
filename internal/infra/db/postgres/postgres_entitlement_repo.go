package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*PostgresEntitlementRepo)(nil)

type PostgresEntitlementRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresEntitlementRepo(pool *pgxpool.Pool) *PostgresEntitlementRepo {
	return &PostgresEntitlementRepo{pool: pool}
}

const entitlementColumns = `id, user_id, game_id, code_id, code, source, granted_by, granted_at`

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	var e model.Entitlement
	var source string
	if err := row.Scan(&e.ID, &e.UserID, &e.GameID, &e.CodeID, &e.Code, &source, &e.GrantedBy, &e.GrantedAt); err != nil {
		return nil, err
	}
	e.Source = model.EntitlementSource(source)
	return &e, nil
}

// Insert relies on entitlements_user_game_key: when two transactions race past
// the ownership pre-check, the loser blocks on the index and then fails here.
func (r *PostgresEntitlementRepo) Insert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = `
INSERT INTO entitlements (id, user_id, game_id, code_id, code, source, granted_by, granted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.UserID, e.GameID, e.CodeID, e.Code, string(e.Source), e.GrantedBy, e.GrantedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyOwned
	case isForeignKeyViolation(err):
		return domain.ErrGameNotFound
	}
	return fmt.Errorf("insert entitlement: %w", err)
}

func (r *PostgresEntitlementRepo) Exists(ctx context.Context, tx repository.Tx, userID, gameID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT EXISTS (SELECT 1 FROM entitlements WHERE user_id = $1 AND game_id = $2);`, userID, gameID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("entitlement exists: %w", err)
	}
	return ok, nil
}

func (r *PostgresEntitlementRepo) Delete(ctx context.Context, tx repository.Tx, userID, gameID string) (*model.Entitlement, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`DELETE FROM entitlements WHERE user_id = $1 AND game_id = $2 RETURNING `+entitlementColumns, userID, gameID)
	if err != nil {
		return nil, err
	}
	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("delete entitlement: %w", err)
	}
	return e, nil
}

func (r *PostgresEntitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	return r.list(ctx, tx, `SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1 ORDER BY granted_at DESC`, userID)
}

func (r *PostgresEntitlementRepo) ListByGame(ctx context.Context, tx repository.Tx, gameID string) ([]*model.Entitlement, error) {
	return r.list(ctx, tx, `SELECT `+entitlementColumns+` FROM entitlements WHERE game_id = $1 ORDER BY granted_at DESC`, gameID)
}

func (r *PostgresEntitlementRepo) list(ctx context.Context, tx repository.Tx, q string, arg string) ([]*model.Entitlement, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	out := []*model.Entitlement{}
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresEntitlementRepo) Tally(ctx context.Context, tx repository.Tx) (map[string]int, map[string]int, error) {
	byGame, err := r.groupCount(ctx, tx, `SELECT game_id, COUNT(*) FROM entitlements GROUP BY game_id`)
	if err != nil {
		return nil, nil, err
	}
	byUser, err := r.groupCount(ctx, tx, `SELECT user_id, COUNT(*) FROM entitlements GROUP BY user_id`)
	if err != nil {
		return nil, nil, err
	}
	return byGame, byUser, nil
}

func (r *PostgresEntitlementRepo) groupCount(ctx context.Context, tx repository.Tx, q string) (map[string]int, error) {
	return scanKeyCounts(ctx, r.pool, tx, q)
}

func scanKeyCounts(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string) (map[string]int, error) {
	rows, err := queryRows(ctx, pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out[k] = n
	}
	return out, rows.Err()
}
