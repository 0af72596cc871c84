package model

import (
	"sort"
	"strings"
	"time"

	"game-activation-ledger/internal/domain"

	"github.com/google/uuid"
)

// EntitlementSource records how a ledger row came to exist.
type EntitlementSource string

const (
	SourceCode  EntitlementSource = "CODE"
	SourceAdmin EntitlementSource = "ADMIN"
)

// Entitlement is one ledger row: this user may access this game.
// (UserID, GameID) is unique across the ledger.
type Entitlement struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	GameID    string            `json:"game_id"`
	CodeID    *string           `json:"code_id,omitempty"` // NULL for admin grants
	Code      *string           `json:"code,omitempty"`    // survives deletion of the code row
	Source    EntitlementSource `json:"source"`
	GrantedBy *string           `json:"granted_by,omitempty"`
	GrantedAt time.Time         `json:"granted_at"`
}

// NewCodeEntitlement builds the ledger row for a redeemed code.
func NewCodeEntitlement(code *ActivationCode, userID string, at time.Time) (*Entitlement, error) {
	if code == nil || strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	codeID, codeStr := code.ID, code.Code
	return &Entitlement{
		ID:        uuid.NewString(),
		UserID:    userID,
		GameID:    code.GameID,
		CodeID:    &codeID,
		Code:      &codeStr,
		Source:    SourceCode,
		GrantedAt: at.UTC(),
	}, nil
}

// NewAdminEntitlement builds a manual grant with no originating code.
func NewAdminEntitlement(userID, gameID, actorID string, at time.Time) (*Entitlement, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(gameID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	e := &Entitlement{
		ID:        uuid.NewString(),
		UserID:    userID,
		GameID:    gameID,
		Source:    SourceAdmin,
		GrantedAt: at.UTC(),
	}
	if actorID != "" {
		a := actorID
		e.GrantedBy = &a
	}
	return e, nil
}

// Game is the minimal catalog row the ledger needs.
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func NewGame(id, name string) (*Game, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Game{ID: id, Name: name, CreatedAt: time.Now().UTC()}, nil
}

// CounterDrift is a mismatch between a denormalized counter and the ledger.
type CounterDrift struct {
	Key     string `json:"key"`
	Counter int    `json:"counter"`
	Ledger  int    `json:"ledger"`
}

// ConsistencyReport is the result of comparing counters to ledger rows.
type ConsistencyReport struct {
	CheckedAt time.Time      `json:"checked_at"`
	GameDrift []CounterDrift `json:"game_drift"`
	UserDrift []CounterDrift `json:"user_drift"`
}

func (r *ConsistencyReport) Consistent() bool {
	return len(r.GameDrift) == 0 && len(r.UserDrift) == 0
}

// CompareCounters diffs counter snapshots against ledger tallies. Keys present on
// only one side are compared against zero.
func CompareCounters(counters, ledger map[string]int) []CounterDrift {
	var out []CounterDrift
	for k, c := range counters {
		if l := ledger[k]; l != c {
			out = append(out, CounterDrift{Key: k, Counter: c, Ledger: l})
		}
	}
	for k, l := range ledger {
		if _, ok := counters[k]; !ok && l != 0 {
			out = append(out, CounterDrift{Key: k, Counter: 0, Ledger: l})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
