package audit

import (
	"context"

	"github.com/rs/zerolog"

	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/adapter"
	"game-activation-ledger/internal/infra/logging"
	"game-activation-ledger/internal/infra/metrics"
	"game-activation-ledger/internal/infra/worker"
)

// Sink stores audit events somewhere durable. Append may block; it is only
// called from pool workers.
type Sink interface {
	Append(ctx context.Context, ev model.AuditEvent) error
}

var (
	_ adapter.AuditEmitter = (*LogEmitter)(nil)
	_ adapter.AuditEmitter = (*AsyncEmitter)(nil)
	_ adapter.AuditEmitter = Multi(nil)
)

// LogEmitter writes each event as one structured log line.
type LogEmitter struct {
	log *zerolog.Logger
	dev bool
}

func NewLogEmitter(logger *zerolog.Logger, dev bool) *LogEmitter {
	l := logger.With().Str("component", "audit").Logger()
	return &LogEmitter{log: &l, dev: dev}
}

func (e *LogEmitter) Emit(ctx context.Context, ev model.AuditEvent) {
	lvl := zerolog.InfoLevel
	if ev.Type == model.EventCodeRejected {
		lvl = zerolog.WarnLevel
	}
	entry := logging.With(ctx, e.log).WithLevel(lvl).
		Str("event_id", ev.ID).
		Str("event", string(ev.Type)).
		Time("occurred_at", ev.OccurredAt)
	for k, v := range map[string]string{
		"actor": ev.ActorID, "user": ev.UserID, "game_id": ev.GameID,
		"code_id": ev.CodeID, "batch_tag": ev.BatchTag, "reason": ev.Reason,
	} {
		if v != "" {
			entry = entry.Str(k, v)
		}
	}
	if ev.Code != "" {
		entry = entry.Str("code", logging.Redact(ev.Code, e.dev))
	}
	if len(ev.Metadata) > 0 {
		entry = entry.Interface("metadata", ev.Metadata)
	}
	entry.Msg("audit")
	metrics.IncAuditEvent(string(ev.Type), "emitted")
}

// AsyncEmitter hands events to a worker pool that writes them to a Sink.
// When the queue is full the event is dropped and counted; Emit never blocks.
type AsyncEmitter struct {
	pool *worker.Pool
	sink Sink
	log  *zerolog.Logger
}

func NewAsyncEmitter(pool *worker.Pool, sink Sink, logger *zerolog.Logger) *AsyncEmitter {
	l := logger.With().Str("component", "audit.async").Logger()
	return &AsyncEmitter{pool: pool, sink: sink, log: &l}
}

func (e *AsyncEmitter) Emit(ctx context.Context, ev model.AuditEvent) {
	// The request ctx is gone by the time a worker runs the task; only the trace id survives.
	traceID := logging.TraceID(ctx)
	err := e.pool.Submit(func(wctx context.Context) error {
		if traceID != "" {
			wctx = logging.WithTraceID(wctx, traceID)
		}
		if err := e.sink.Append(wctx, ev); err != nil {
			metrics.IncAuditEvent(string(ev.Type), "failed")
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncAuditEvent(string(ev.Type), "dropped")
		e.log.Warn().Err(err).Str("event", string(ev.Type)).Str("event_id", ev.ID).Msg("audit event dropped")
	}
}

// Multi fans one event out to several emitters in order.
type Multi []adapter.AuditEmitter

func (m Multi) Emit(ctx context.Context, ev model.AuditEvent) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}
