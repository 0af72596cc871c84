//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"game-activation-ledger/internal/infra/logging"
)

func TestPool_RunsAndDrainsOnStop(t *testing.T) {
	p := NewPool(2, 16, logging.Nop())
	p.Start(context.Background())

	var ran int32
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()

	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Errorf("expected 10 tasks to run before Stop returned, got %d", got)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("submit after stop: expected ErrStopped, got %v", err)
	}
	p.Stop()
}

func TestPool_StopRunsTasksQueuedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(2, 16, logging.Nop())
	p.Start(ctx)
	cancel()
	// Give the workers a moment to observe the cancellation and exit.
	time.Sleep(20 * time.Millisecond)

	var ran, cancelled int32
	for i := 0; i < 5; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			if ctx.Err() != nil {
				atomic.AddInt32(&cancelled, 1)
			}
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()

	if got := atomic.LoadInt32(&ran); got != 5 {
		t.Errorf("expected all 5 queued tasks to run on Stop, got %d", got)
	}
	if got := atomic.LoadInt32(&cancelled); got != 0 {
		t.Errorf("drained tasks must not see a cancelled context, %d did", got)
	}
}

func TestPool_SubmitFailsWhenFull(t *testing.T) {
	p := NewPool(1, 1, logging.Nop())
	// Not started: the single slot fills and the next submit must not block.
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Submit(func(context.Context) error { return nil }) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := NewPool(1, 4, logging.Nop())
	p.Start(context.Background())

	var after int32
	_ = p.Submit(func(context.Context) error { panic("boom") })
	_ = p.Submit(func(context.Context) error { atomic.StoreInt32(&after, 1); return nil })
	p.Stop()

	if atomic.LoadInt32(&after) != 1 {
		t.Error("worker did not survive a panicking task")
	}
}
