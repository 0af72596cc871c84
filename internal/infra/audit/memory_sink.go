package audit

import (
	"context"
	"sync"

	"game-activation-ledger/internal/domain/model"
)

// Recorder keeps events in memory. It is the sink used with the in-process
// store and doubles as an emitter in tests.
type Recorder struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Append(_ context.Context, ev model.AuditEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Emit(ctx context.Context, ev model.AuditEvent) { _ = r.Append(ctx, ev) }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters the recorded events.
func (r *Recorder) OfType(t model.AuditEventType) []model.AuditEvent {
	var out []model.AuditEvent
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
