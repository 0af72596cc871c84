package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrCodeAlreadyUsed     = errors.New("activation code already used")
	ErrCodeNotFound        = errors.New("activation code not found")
	ErrAlreadyOwned        = errors.New("game already owned by user")
	ErrGameNotFound        = errors.New("game not found")
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrBatchTooLarge       = errors.New("requested code count out of range")
)

// RejectReason is the user-facing reason a redemption or grant was refused.
type RejectReason string

const (
	ReasonNotFound     RejectReason = "NOT_FOUND"
	ReasonAlreadyUsed  RejectReason = "ALREADY_USED"
	ReasonAlreadyOwned RejectReason = "ALREADY_OWNED"
)

// RejectionError is an expected state conflict. It is terminal: retrying the
// same call cannot change the outcome.
type RejectionError struct {
	Reason RejectReason
	Code   string
	GameID string
}

func (e *RejectionError) Error() string {
	if e.GameID != "" {
		return fmt.Sprintf("rejected: %s (game=%s)", e.Reason, e.GameID)
	}
	return fmt.Sprintf("rejected: %s", e.Reason)
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case ReasonNotFound:
		return ErrCodeNotFound
	case ReasonAlreadyUsed:
		return ErrCodeAlreadyUsed
	case ReasonAlreadyOwned:
		return ErrAlreadyOwned
	}
	return nil
}

// Reject builds a RejectionError.
func Reject(reason RejectReason, code, gameID string) error {
	return &RejectionError{Reason: reason, Code: code, GameID: gameID}
}

// AsRejection reports whether err carries a RejectionError.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
