package usecase

import (
	"crypto/rand"
	"io"
	"strings"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
)

// codeAlphabet avoids ambiguous characters like O/0, I/1.
// Its length (32) divides 256, so a byte modulo len is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeGenerator renders candidate code strings. It does not check uniqueness;
// the code registry does that on insert.
type codeGenerator struct {
	random    io.Reader
	groups    int
	groupSize int
}

func newCodeGenerator(random io.Reader, groups, groupSize int) *codeGenerator {
	if random == nil {
		random = rand.Reader
	}
	if groups <= 0 {
		groups = 4
	}
	if groupSize <= 0 {
		groupSize = 4
	}
	return &codeGenerator{random: random, groups: groups, groupSize: groupSize}
}

// Candidate returns XXXX-XXXX-XXXX-XXXX for RANDOM, and PREFIX-XXXX-XXXX-XXXX
// (one group fewer) for PREFIX.
func (g *codeGenerator) Candidate(pattern model.CodePattern, prefix string) (string, error) {
	groups := g.groups
	var b strings.Builder
	switch pattern {
	case model.PatternRandom, "":
	case model.PatternPrefix:
		if prefix == "" {
			return "", domain.ErrInvalidArgument
		}
		b.WriteString(prefix)
		if groups > 1 {
			groups--
		}
	default:
		return "", domain.ErrInvalidArgument
	}

	buf := make([]byte, groups*g.groupSize)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", err
	}
	for i, c := range buf {
		if i%g.groupSize == 0 && b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
