package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/repository"
)

var _ repository.GameRepository = (*PostgresGameRepo)(nil)

type PostgresGameRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresGameRepo(pool *pgxpool.Pool) *PostgresGameRepo {
	return &PostgresGameRepo{pool: pool}
}

func (r *PostgresGameRepo) Save(ctx context.Context, tx repository.Tx, g *model.Game) error {
	const q = `
INSERT INTO games (id, name, created_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name;
`
	if _, err := execSQL(ctx, r.pool, tx, q, g.ID, g.Name, g.CreatedAt); err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

func (r *PostgresGameRepo) MissingIDs(ctx context.Context, tx repository.Tx, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
SELECT u.id FROM unnest($1::text[]) AS u(id)
  LEFT JOIN games g ON g.id = u.id
 WHERE g.id IS NULL;
`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("check games: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (r *PostgresGameRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Game, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT id, name, created_at FROM games ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []*model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
