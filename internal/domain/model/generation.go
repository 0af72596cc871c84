package model

import (
	"strings"

	"game-activation-ledger/internal/domain"
)

// CodePattern selects the textual shape of generated codes.
type CodePattern string

const (
	PatternRandom CodePattern = "RANDOM" // XXXX-XXXX-XXXX-XXXX
	PatternPrefix CodePattern = "PREFIX" // PREFIX-XXXX-XXXX-XXXX
)

const maxPrefixLength = 16

func ParseCodePattern(s string) (CodePattern, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(PatternRandom):
		return PatternRandom, nil
	case string(PatternPrefix):
		return PatternPrefix, nil
	}
	return "", domain.ErrInvalidArgument
}

// NormalizePrefix upper-cases a batch prefix and checks it is 1-16 chars of [A-Z0-9].
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if p == "" || len(p) > maxPrefixLength {
		return "", domain.ErrInvalidArgument
	}
	for i := 0; i < len(p); i++ {
		ch := p[i]
		if !(ch >= 'A' && ch <= 'Z') && !(ch >= '0' && ch <= '9') {
			return "", domain.ErrInvalidArgument
		}
	}
	return p, nil
}

// GenerateRequest asks for Count codes for each of GameIDs.
type GenerateRequest struct {
	GameIDs []string    `json:"game_ids"`
	Count   int         `json:"count"`
	Pattern CodePattern `json:"pattern"`
	Prefix  string      `json:"prefix,omitempty"`
	ActorID string      `json:"-"`
}

type GeneratedCode struct {
	GameID string `json:"game_id"`
	Code   string `json:"code"`
}

type GenerationFailure struct {
	GameID string `json:"game_id"`
	Slot   int    `json:"slot"`
	Reason string `json:"reason"`
}

// GenerationResult reports per-slot outcomes; a batch is never all-or-nothing.
type GenerationResult struct {
	BatchTag  string              `json:"batch_tag"`
	Succeeded []GeneratedCode     `json:"succeeded"`
	Failed    []GenerationFailure `json:"failed"`
}

// BatchDeleteResult reports a partial batch deletion.
type BatchDeleteResult struct {
	Matched          int `json:"matched"`
	Deleted          int `json:"deleted"`
	SkippedActivated int `json:"skipped_activated"`
}

// CodeSelector picks a set of codes either by batch tag or by explicit ids.
type CodeSelector struct {
	BatchTag string
	IDs      []string
}

func (s CodeSelector) Empty() bool { return s.BatchTag == "" && len(s.IDs) == 0 }
