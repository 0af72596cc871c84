//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/infra/logging"
)

type fakeVerifier struct {
	report *model.ConsistencyReport
	err    error
	calls  int32
}

func (f *fakeVerifier) Verify(ctx context.Context) (*model.ConsistencyReport, error) {
	atomic.AddInt32(&f.calls, 1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a bounded context")
	}
	return f.report, f.err
}

func TestConsistencyWorker_RunOnce(t *testing.T) {
	drift := &model.ConsistencyReport{GameDrift: []model.CounterDrift{{Key: "G1", Counter: 2, Ledger: 1}}}
	w := NewConsistencyWorker(&fakeVerifier{report: drift}, time.Second, logging.Nop())
	got, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got.Consistent() {
		t.Error("drift should be passed through")
	}

	failing := NewConsistencyWorker(&fakeVerifier{err: errors.New("db down")}, 0, logging.Nop())
	if _, err := failing.RunOnce(context.Background()); err == nil {
		t.Error("expected verify error to surface")
	}
}

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	s := NewScheduler(logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 8)
	if err := s.Add(ctx, "tick", "@every 1s", func(context.Context) { ran <- struct{}{} }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, "bad", "not a cron spec", func(context.Context) {}); err == nil {
		t.Fatal("expected a parse error for an invalid spec")
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
