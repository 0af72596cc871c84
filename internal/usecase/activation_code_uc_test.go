//go:build !integration

package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
)

func TestCodeUseCase_GenerateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{MaxPerGame: 10}, "G1")
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.GenerateRequest
		want error
	}{
		{"no games", model.GenerateRequest{GameIDs: []string{" ", ""}, Count: 1}, domain.ErrInvalidArgument},
		{"zero count", model.GenerateRequest{GameIDs: []string{"G1"}, Count: 0}, domain.ErrBatchTooLarge},
		{"count above ceiling", model.GenerateRequest{GameIDs: []string{"G1"}, Count: 11}, domain.ErrBatchTooLarge},
		{"unknown pattern", model.GenerateRequest{GameIDs: []string{"G1"}, Count: 1, Pattern: "FANCY"}, domain.ErrInvalidArgument},
		{"bad prefix", model.GenerateRequest{GameIDs: []string{"G1"}, Count: 1, Pattern: model.PatternPrefix, Prefix: "NO SPACES"}, domain.ErrInvalidArgument},
		{"prefix without pattern", model.GenerateRequest{GameIDs: []string{"G1"}, Count: 1, Prefix: "ABC"}, domain.ErrInvalidArgument},
		{"unknown game", model.GenerateRequest{GameIDs: []string{"G1", "G404"}, Count: 1}, domain.ErrGameNotFound},
	}
	for _, tc := range cases {
		if _, err := f.codes.Generate(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	page, err := f.codes.List(ctx, model.CodeFilter{}, model.PageRequest{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("rejected requests must not write codes, found %d", page.Total)
	}
}

func TestCodeUseCase_GenerateDedupesGamesAndTagsBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1", "G2")
	ctx := context.Background()

	res, err := f.codes.Generate(ctx, model.GenerateRequest{
		GameIDs: []string{"G1", "G2", "G1"},
		Count:   3,
		Pattern: model.PatternPrefix,
		Prefix:  "promo",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Succeeded) != 6 {
		t.Fatalf("expected 6 codes (3 per distinct game), got %d", len(res.Succeeded))
	}
	if res.BatchTag == "" {
		t.Fatal("batch tag missing")
	}
	for _, g := range res.Succeeded {
		if g.Code[:6] != "PROMO-" {
			t.Errorf("code %q lacks the upper-cased prefix", g.Code)
		}
	}

	page, _ := f.codes.List(ctx, model.CodeFilter{BatchTag: res.BatchTag}, model.PageRequest{Page: 1, PageSize: 50})
	if page.Total != 6 {
		t.Errorf("batch listing total = %d, want 6", page.Total)
	}
	if got := len(f.events.OfType(model.EventCodeGenerated)); got != 6 {
		t.Errorf("expected one CODE_GENERATED event per code, got %d", got)
	}
}

func TestCodeUseCase_CollisionRetryRecovers(t *testing.T) {
	t.Parallel()
	// The first two candidates are identical: slot 2 collides once, then succeeds.
	f := newFixture(t, CodeOptions{Random: &stutterReader{n: 2, next: rand.Reader}}, "G1")

	res := f.generate(t, 2, "G1")
	if len(res.Succeeded) != 2 || res.Succeeded[0].Code == res.Succeeded[1].Code {
		t.Fatalf("expected two distinct codes, got %+v", res.Succeeded)
	}
}

func TestCodeUseCase_CollisionRetriesExhausted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{Random: zeroReader{}, MaxAttempts: 5}, "G1")

	res, err := f.codes.Generate(context.Background(), model.GenerateRequest{GameIDs: []string{"G1"}, Count: 3})
	if err != nil {
		t.Fatalf("per-slot failures must not fail the batch: %v", err)
	}
	if len(res.Succeeded) != 1 {
		t.Fatalf("expected the first slot to succeed, got %d", len(res.Succeeded))
	}
	if len(res.Failed) != 2 {
		t.Fatalf("expected 2 failed slots, got %d", len(res.Failed))
	}
	for _, fl := range res.Failed {
		if fl.Reason != ReasonCollisionsExhausted || fl.GameID != "G1" {
			t.Errorf("unexpected failure %+v", fl)
		}
	}
	if res.Failed[0].Slot != 2 || res.Failed[1].Slot != 3 {
		t.Errorf("failed slots should be 2 and 3, got %+v", res.Failed)
	}
}

func TestCodeUseCase_StorageFailureIsPerSlot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1")
	calls := 0
	f.store.OnCreate = func(*model.ActivationCode) error {
		calls++
		if calls == 2 {
			return errors.New("disk unavailable")
		}
		return nil
	}

	res, err := f.codes.Generate(context.Background(), model.GenerateRequest{GameIDs: []string{"G1"}, Count: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 {
		t.Fatalf("expected 2 ok + 1 failed, got %d + %d", len(res.Succeeded), len(res.Failed))
	}
	if res.Failed[0].Reason != ReasonStorageError || res.Failed[0].Slot != 2 {
		t.Errorf("unexpected failure %+v", res.Failed[0])
	}
}

func TestCodeUseCase_GenerateCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.codes.Generate(ctx, model.GenerateRequest{GameIDs: []string{"G1"}, Count: 4})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || len(res.Succeeded) != 0 || len(res.Failed) != 4 {
		t.Fatalf("expected a partial result with 4 cancelled slots, got %+v", res)
	}
}

func TestCodeUseCase_DeleteSingle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1")
	ctx := context.Background()
	res := f.generate(t, 2, "G1")
	unused := f.codeByString(t, res.Succeeded[0].Code)
	used := f.codeByString(t, res.Succeeded[1].Code)

	if _, err := f.redeem.Redeem(ctx, used.Code, "u1"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if err := f.codes.Delete(ctx, "not-a-uuid", false, "admin"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad id: expected ErrInvalidArgument, got %v", err)
	}
	if err := f.codes.Delete(ctx, "7b0c1a2e-0000-4000-8000-000000000000", false, "admin"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("missing id: expected ErrCodeNotFound, got %v", err)
	}
	if err := f.codes.Delete(ctx, unused.ID, false, "admin"); err != nil {
		t.Fatalf("delete unused: %v", err)
	}
	if err := f.codes.Delete(ctx, used.ID, false, "admin"); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("delete activated without force: expected ErrCodeAlreadyUsed, got %v", err)
	}
	if err := f.codes.Delete(ctx, used.ID, true, "admin"); err != nil {
		t.Fatalf("forced delete: %v", err)
	}

	// Forced delete never cascades: the entitlement and its code trace remain.
	ents, err := f.ledger.ListByUser(ctx, "u1")
	if err != nil || len(ents) != 1 {
		t.Fatalf("entitlement should survive a forced code delete: %v %v", ents, err)
	}
	if ents[0].Code == nil || *ents[0].Code != used.Code {
		t.Errorf("entitlement lost its code reference: %+v", ents[0])
	}
	if got := len(f.events.OfType(model.EventCodeDeleted)); got != 2 {
		t.Errorf("expected 2 CODE_DELETED events, got %d", got)
	}
}

func TestCodeUseCase_DeleteMany(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1")
	ctx := context.Background()
	res := f.generate(t, 3, "G1")
	var ids []string
	for _, g := range res.Succeeded {
		ids = append(ids, f.codeByString(t, g.Code).ID)
	}
	if _, err := f.redeem.Redeem(ctx, res.Succeeded[0].Code, "u1"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if _, err := f.codes.DeleteMany(ctx, []string{"nope"}, "admin"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for non-uuid id, got %v", err)
	}
	out, err := f.codes.DeleteMany(ctx, append(ids, ids[1]), "admin")
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if out.Matched != 3 || out.Deleted != 2 || out.SkippedActivated != 1 {
		t.Errorf("unexpected result %+v", out)
	}
}

func TestCodeUseCase_DeleteBatchUnknown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1")
	if _, err := f.codes.DeleteBatch(context.Background(), "01UNKNOWNBATCH", "admin"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.codes.DeleteBatch(context.Background(), "  ", "admin"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCodeUseCase_ListFiltersAndPaging(t *testing.T) {
	t.Parallel()
	f := newFixture(t, CodeOptions{}, "G1", "G2")
	ctx := context.Background()
	f.generate(t, 5, "G1")
	res2 := f.generate(t, 2, "G2")
	if _, err := f.redeem.Redeem(ctx, res2.Succeeded[0].Code, "u1"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	page, err := f.codes.List(ctx, model.CodeFilter{GameID: "G1"}, model.PageRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.TotalPages != 3 {
		t.Errorf("unexpected page: total=%d items=%d pages=%d", page.Total, len(page.Items), page.TotalPages)
	}

	used, _ := f.codes.List(ctx, model.CodeFilter{Status: model.CodeStatusActivated}, model.PageRequest{})
	if used.Total != 1 || used.Items[0].Code != res2.Succeeded[0].Code {
		t.Errorf("status filter: %+v", used)
	}

	kw := res2.Succeeded[1].Code[5:9]
	byKeyword, _ := f.codes.List(ctx, model.CodeFilter{Keyword: " " + kw + " "}, model.PageRequest{})
	found := false
	for _, c := range byKeyword.Items {
		if c.Code == res2.Succeeded[1].Code {
			found = true
		}
	}
	if !found {
		t.Errorf("keyword %q did not match %q", kw, res2.Succeeded[1].Code)
	}
}
