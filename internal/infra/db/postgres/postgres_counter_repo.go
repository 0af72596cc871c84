package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/domain/ports/repository"
)

var _ repository.CounterRepository = (*PostgresCounterRepo)(nil)

// PostgresCounterRepo maintains game_activation_counters and user_activation_counters.
type PostgresCounterRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCounterRepo(pool *pgxpool.Pool) *PostgresCounterRepo {
	return &PostgresCounterRepo{pool: pool}
}

// Adjust upserts both counters by delta. Callers pass the redemption/grant tx;
// the CHECK (>= 0) constraints abort a revoke that would go negative.
// Game row is locked before user row in every caller, which keeps lock order stable.
func (r *PostgresCounterRepo) Adjust(ctx context.Context, tx repository.Tx, userID, gameID string, delta int) error {
	const qGame = `
INSERT INTO game_activation_counters (game_id, activation_count) VALUES ($1, $2)
ON CONFLICT (game_id) DO UPDATE
  SET activation_count = game_activation_counters.activation_count + EXCLUDED.activation_count;
`
	const qUser = `
INSERT INTO user_activation_counters (user_id, activated_games_count) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
  SET activated_games_count = user_activation_counters.activated_games_count + EXCLUDED.activated_games_count;
`
	if _, err := execSQL(ctx, r.pool, tx, qGame, gameID, delta); err != nil {
		return fmt.Errorf("adjust game counter: %w", err)
	}
	if _, err := execSQL(ctx, r.pool, tx, qUser, userID, delta); err != nil {
		return fmt.Errorf("adjust user counter: %w", err)
	}
	return nil
}

func (r *PostgresCounterRepo) GameCount(ctx context.Context, tx repository.Tx, gameID string) (int, error) {
	return r.single(ctx, tx,
		`SELECT COALESCE((SELECT activation_count FROM game_activation_counters WHERE game_id = $1), 0);`, gameID)
}

func (r *PostgresCounterRepo) UserCount(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	return r.single(ctx, tx,
		`SELECT COALESCE((SELECT activated_games_count FROM user_activation_counters WHERE user_id = $1), 0);`, userID)
}

func (r *PostgresCounterRepo) single(ctx context.Context, tx repository.Tx, q, arg string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return n, nil
}

func (r *PostgresCounterRepo) Snapshot(ctx context.Context, tx repository.Tx) (map[string]int, map[string]int, error) {
	games, err := scanKeyCounts(ctx, r.pool, tx, `SELECT game_id, activation_count FROM game_activation_counters`)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot game counters: %w", err)
	}
	users, err := scanKeyCounts(ctx, r.pool, tx, `SELECT user_id, activated_games_count FROM user_activation_counters`)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot user counters: %w", err)
	}
	return games, users, nil
}
