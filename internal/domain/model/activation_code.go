package model

import (
	"strings"
	"time"

	"game-activation-ledger/internal/domain"

	"github.com/google/uuid"
)

// CodeStatus is the lifecycle state of an activation code.
// The only transition is UNUSED -> ACTIVATED.
type CodeStatus string

const (
	CodeStatusUnused    CodeStatus = "UNUSED"
	CodeStatusActivated CodeStatus = "ACTIVATED"
)

// ParseCodeStatus accepts the stored names plus the "USED" alias the admin console sends.
func ParseCodeStatus(s string) (CodeStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(CodeStatusUnused):
		return CodeStatusUnused, nil
	case string(CodeStatusActivated), "USED":
		return CodeStatusActivated, nil
	}
	return "", domain.ErrInvalidArgument
}

// ActivationCode represents a single-use code that can be redeemed for one game.
type ActivationCode struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	GameID      string     `json:"game_id"`
	Status      CodeStatus `json:"status"`
	UserID      *string    `json:"user_id,omitempty"`      // NULL until activated
	ActivatedAt *time.Time `json:"activated_at,omitempty"` // NULL until activated
	CreatedAt   time.Time  `json:"created_at"`
	BatchTag    string     `json:"batch_tag,omitempty"`
}

// NewActivationCode builds an UNUSED code for gameID.
func NewActivationCode(code, gameID, batchTag string) (*ActivationCode, error) {
	code = NormalizeCode(code)
	if code == "" || strings.TrimSpace(gameID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ActivationCode{
		ID:        uuid.NewString(),
		Code:      code,
		GameID:    gameID,
		Status:    CodeStatusUnused,
		CreatedAt: time.Now().UTC(),
		BatchTag:  batchTag,
	}, nil
}

func (c *ActivationCode) IsUnused() bool { return c.Status == CodeStatusUnused }

// Activate stamps the owner and time. It fails if the code was already consumed.
func (c *ActivationCode) Activate(userID string, at time.Time) error {
	if c.Status != CodeStatusUnused {
		return domain.ErrCodeAlreadyUsed
	}
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidArgument
	}
	uid := userID
	ts := at.UTC()
	c.Status = CodeStatusActivated
	c.UserID = &uid
	c.ActivatedAt = &ts
	return nil
}

// Validate checks the state invariants of a code row.
func (c *ActivationCode) Validate() error {
	switch c.Status {
	case CodeStatusUnused:
		if c.UserID != nil || c.ActivatedAt != nil {
			return domain.ErrInvalidArgument
		}
	case CodeStatusActivated:
		if c.UserID == nil || c.ActivatedAt == nil {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}

// NormalizeCode trims whitespace and upper-cases a submitted code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const maxCodeLength = 64

// ValidCodeFormat reports whether a normalized code is made of [A-Z0-9]
// blocks separated by single dashes.
func ValidCodeFormat(code string) bool {
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	prevDash := true
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '-':
			if prevDash {
				return false
			}
			prevDash = true
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			prevDash = false
		default:
			return false
		}
	}
	return !prevDash
}
