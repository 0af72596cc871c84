//go:build !integration

package usecase

import (
	"bytes"
	"strings"
	"testing"

	"game-activation-ledger/internal/domain/model"
)

func TestCodeGenerator_RandomFormat(t *testing.T) {
	g := newCodeGenerator(nil, 4, 4)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c, err := g.Candidate(model.PatternRandom, "")
		if err != nil {
			t.Fatalf("Candidate: %v", err)
		}
		if len(c) != 19 || strings.Count(c, "-") != 3 {
			t.Fatalf("unexpected shape %q", c)
		}
		if !model.ValidCodeFormat(c) {
			t.Fatalf("generated code fails format check: %q", c)
		}
		for _, ch := range strings.ReplaceAll(c, "-", "") {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("character %q outside alphabet in %q", ch, c)
			}
		}
		seen[c] = true
	}
	if len(seen) < 199 {
		t.Errorf("suspiciously many repeats: %d distinct of 200", len(seen))
	}
}

func TestCodeGenerator_PrefixFormat(t *testing.T) {
	g := newCodeGenerator(nil, 4, 4)
	c, err := g.Candidate(model.PatternPrefix, "SPRING24")
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	parts := strings.Split(c, "-")
	if len(parts) != 4 || parts[0] != "SPRING24" {
		t.Fatalf("unexpected prefixed code %q", c)
	}
	if !model.ValidCodeFormat(c) {
		t.Errorf("prefixed code fails format check: %q", c)
	}
	if _, err := g.Candidate(model.PatternPrefix, ""); err == nil {
		t.Error("PREFIX without prefix should fail")
	}
}

func TestCodeGenerator_DeterministicReader(t *testing.T) {
	src := bytes.Repeat([]byte{0, 1, 2, 31}, 4)
	g := newCodeGenerator(bytes.NewReader(src), 2, 4)
	c, err := g.Candidate(model.PatternRandom, "")
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if c != "ABC9-ABC9" {
		t.Errorf("got %q, want ABC9-ABC9", c)
	}
}
