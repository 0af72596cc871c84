package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a cron runner. Jobs never overlap with themselves and a
// panicking job is logged instead of taking the process down.
type Scheduler struct {
	c   *cron.Cron
	log *zerolog.Logger

	mu      sync.Mutex
	started bool
}

func NewScheduler(logger *zerolog.Logger) *Scheduler {
	compLog := logger.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: &compLog}
	return &Scheduler{
		c: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: &compLog,
	}
}

// Add registers fn under a standard cron spec or an "@every 10m" descriptor.
// fn receives the context passed to Run.
func (s *Scheduler) Add(ctx context.Context, name, spec string, fn func(ctx context.Context)) error {
	_, err := s.c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.log.Debug().Str("job", name).Msg("job start")
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info().Int("jobs", len(s.c.Entries())).Msg("scheduler started")
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log *zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
