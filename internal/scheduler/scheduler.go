// Package scheduler fires the daily cycles on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"autobill/internal/logger"
)

// Job is one scheduled unit of work. Errors are logged, never retried.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on independent cron specs.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	log     zerolog.Logger
	entries map[string]cron.EntryID
}

// New creates a scheduler evaluating specs in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log := logger.WithComponent("scheduler")
	adapter := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Register adds job under name with a standard five-field cron spec.
func (s *Scheduler) Register(name, spec string, job Job) error {
	const op = "Register"

	id, err := s.cron.AddFunc(spec, func() {
		log := s.log.With().Str("job", name).Logger()
		start := time.Now()
		log.Info().Msg("Scheduled job triggered")
		if err := job(s.ctx); err != nil {
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
			return
		}
		log.Info().Dur("duration", time.Since(start)).Msg("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("%s: invalid schedule %q for %s: %w", op, spec, name, err)
	}
	s.entries[name] = id

	s.log.Info().Str("job", name).Str("schedule", spec).Msg("Job registered")
	return nil
}

// Next returns the next activation of a registered job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.Schedule == nil {
		return time.Time{}, false
	}
	return entry.Schedule.Next(time.Now().In(s.cron.Location())), true
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Stop halts new activations and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	select {
	case <-done.Done():
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Stop: waiting for running jobs: %w", ctx.Err())
	}
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
