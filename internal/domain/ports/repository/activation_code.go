package repository

import (
	"context"
	"time"

	"game-activation-ledger/internal/domain/model"
)

// ActivationCodeRepository is the port for managing activation codes.
type ActivationCodeRepository interface {
	// Create persists a new code and reserves its string forever. A code string
	// that was ever issued, even if later deleted, yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, code *model.ActivationCode) error
	// FindByCode looks a code up by exact string, whatever its state. Inside a
	// transaction the row is locked until commit.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.ActivationCode, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.ActivationCode, error)
	// MarkActivated performs the UNUSED -> ACTIVATED transition. It returns
	// domain.ErrCodeAlreadyUsed when the code is no longer UNUSED.
	MarkActivated(ctx context.Context, tx Tx, id, userID string, at time.Time) error
	Delete(ctx context.Context, tx Tx, id string) error
	// CountSelected returns how many selected codes exist and how many of them are ACTIVATED.
	CountSelected(ctx context.Context, tx Tx, sel model.CodeSelector) (total, activated int, err error)
	// DeleteUnused removes only the UNUSED members of the selection.
	DeleteUnused(ctx context.Context, tx Tx, sel model.CodeSelector) (int, error)
	List(ctx context.Context, tx Tx, f model.CodeFilter, p model.PageRequest) ([]*model.ActivationCode, int, error)
}
