package repository

import (
	"context"

	"game-activation-ledger/internal/domain/model"
)

// EntitlementRepository is the port for the ledger table.
type EntitlementRepository interface {
	// Insert adds a ledger row. A second row for the same (user, game) yields
	// domain.ErrAlreadyOwned.
	Insert(ctx context.Context, tx Tx, e *model.Entitlement) error
	Exists(ctx context.Context, tx Tx, userID, gameID string) (bool, error)
	// Delete removes the (user, game) row or returns domain.ErrEntitlementNotFound.
	Delete(ctx context.Context, tx Tx, userID, gameID string) (*model.Entitlement, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Entitlement, error)
	ListByGame(ctx context.Context, tx Tx, gameID string) ([]*model.Entitlement, error)
	// Tally counts ledger rows per game and per user.
	Tally(ctx context.Context, tx Tx) (byGame, byUser map[string]int, err error)
}

// CounterRepository maintains the denormalized per-game and per-user counts.
// Adjust must only be called inside the transaction that writes the ledger.
type CounterRepository interface {
	Adjust(ctx context.Context, tx Tx, userID, gameID string, delta int) error
	GameCount(ctx context.Context, tx Tx, gameID string) (int, error)
	UserCount(ctx context.Context, tx Tx, userID string) (int, error)
	Snapshot(ctx context.Context, tx Tx) (games, users map[string]int, err error)
}

// GameRepository is the narrow view of the game catalog the ledger needs.
type GameRepository interface {
	Save(ctx context.Context, tx Tx, g *model.Game) error
	// MissingIDs returns the subset of ids with no catalog row.
	MissingIDs(ctx context.Context, tx Tx, ids []string) ([]string, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Game, error)
}

// EntitlementCache is an optional read-through cache of positive access answers.
//
// Entries carry the (user, game) generation they were read at. A revoke bumps
// the generation and holds off fills before its transaction starts, so neither
// an older entry nor a fill racing the revoke can answer after it commits.
type EntitlementCache interface {
	// Lookup reports a hit, plus the current generation to pass to Fill on a miss.
	Lookup(ctx context.Context, userID, gameID string) (hit bool, gen int64, err error)
	// Fill stores a positive answer read at gen. It does nothing when gen is
	// stale or a revoke holds the key.
	Fill(ctx context.Context, userID, gameID string, gen int64) error
	// BeginRevoke voids cached answers and blocks fills until EndRevoke or the
	// hold expires. A revoke must not proceed when it fails.
	BeginRevoke(ctx context.Context, userID, gameID string) error
	EndRevoke(ctx context.Context, userID, gameID string) error
}
