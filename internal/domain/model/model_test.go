//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"game-activation-ledger/internal/domain"
)

func TestNewActivationCode(t *testing.T) {
	t.Run("should normalize and start unused", func(t *testing.T) {
		c, err := NewActivationCode("  abcd-efgh ", "game-1", "batch")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if c.Code != "ABCD-EFGH" {
			t.Errorf("expected normalized code, got %q", c.Code)
		}
		if c.Status != CodeStatusUnused || c.UserID != nil || c.ActivatedAt != nil {
			t.Errorf("expected a fresh unused code, got %+v", c)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("fresh code failed validation: %v", err)
		}
	})

	t.Run("should reject missing game", func(t *testing.T) {
		_, err := NewActivationCode("ABCD", " ", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestActivationCode_Activate(t *testing.T) {
	c, _ := NewActivationCode("ABCD", "g", "")
	now := time.Now()

	if err := c.Activate("u1", now); err != nil {
		t.Fatalf("first activation failed: %v", err)
	}
	if c.Status != CodeStatusActivated || *c.UserID != "u1" || c.ActivatedAt == nil {
		t.Fatalf("activation did not stamp owner and time: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("activated code failed validation: %v", err)
	}

	if err := c.Activate("u2", now); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("expected ErrCodeAlreadyUsed on second activation, got %v", err)
	}
	if *c.UserID != "u1" {
		t.Errorf("owner changed after rejected activation: %s", *c.UserID)
	}
}

func TestValidCodeFormat(t *testing.T) {
	cases := map[string]bool{
		"ABCD-EFGH-2345-6789": true,
		"PROMO-ABCD":          true,
		"ABCD":                true,
		"":                    false,
		"-ABCD":               false,
		"ABCD-":               false,
		"AB--CD":              false,
		"abcd":                false,
		"AB CD":               false,
		"ABÇD":                false,
	}
	for in, want := range cases {
		if got := ValidCodeFormat(in); got != want {
			t.Errorf("ValidCodeFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCodeStatus(t *testing.T) {
	if s, _ := ParseCodeStatus("used"); s != CodeStatusActivated {
		t.Errorf("expected USED alias to map to ACTIVATED, got %q", s)
	}
	if s, _ := ParseCodeStatus(""); s != "" {
		t.Errorf("expected empty status to mean any, got %q", s)
	}
	if _, err := ParseCodeStatus("EXPIRED"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestNormalizePrefix(t *testing.T) {
	if p, err := NormalizePrefix(" summer24 "); err != nil || p != "SUMMER24" {
		t.Fatalf("expected SUMMER24, got %q (%v)", p, err)
	}
	for _, bad := range []string{"", "has-dash", "WAYTOOLONGPREFIX123"} {
		if _, err := NormalizePrefix(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestNewEntitlements(t *testing.T) {
	code, _ := NewActivationCode("ABCD", "g1", "")
	e, err := NewCodeEntitlement(code, "u1", time.Now())
	if err != nil {
		t.Fatalf("NewCodeEntitlement: %v", err)
	}
	if e.Source != SourceCode || e.CodeID == nil || *e.CodeID != code.ID || *e.Code != "ABCD" {
		t.Errorf("code entitlement missing code reference: %+v", e)
	}

	a, err := NewAdminEntitlement("u1", "g1", "admin-7", time.Now())
	if err != nil {
		t.Fatalf("NewAdminEntitlement: %v", err)
	}
	if a.Source != SourceAdmin || a.CodeID != nil || a.GrantedBy == nil || *a.GrantedBy != "admin-7" {
		t.Errorf("admin entitlement has unexpected shape: %+v", a)
	}
}

func TestCompareCounters(t *testing.T) {
	counters := map[string]int{"a": 2, "b": 1, "c": 0}
	ledger := map[string]int{"a": 2, "b": 3, "d": 1}

	drift := CompareCounters(counters, ledger)
	if len(drift) != 2 {
		t.Fatalf("expected 2 drifts, got %+v", drift)
	}
	if drift[0].Key != "b" || drift[0].Counter != 1 || drift[0].Ledger != 3 {
		t.Errorf("unexpected drift for b: %+v", drift[0])
	}
	if drift[1].Key != "d" || drift[1].Counter != 0 || drift[1].Ledger != 1 {
		t.Errorf("unexpected drift for d: %+v", drift[1])
	}
}

func TestPageRequest_Normalize(t *testing.T) {
	p := PageRequest{Page: 0, PageSize: 10_000}.Normalize()
	if p.Page != 1 || p.PageSize != MaxPageSize {
		t.Fatalf("unexpected normalized page: %+v", p)
	}
	page := NewCodePage(nil, 41, PageRequest{Page: 2, PageSize: 20})
	if page.TotalPages != 3 || page.Items == nil {
		t.Fatalf("unexpected page: %+v", page)
	}
}
