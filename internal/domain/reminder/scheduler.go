package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
)

// cronLogger adapts zerolog to cron.Logger. Cron's info chatter goes to debug.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Scheduler runs reminder ticks and marker pruning on cron specs evaluated in
// the reference time zone. A tick still running when the next one fires is
// skipped.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewScheduler(engine *Engine, loc *time.Location, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "reminder-scheduler").Logger()
	cl := cronLogger{l: logger}
	return &Scheduler{
		engine: engine,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(recurrence.JobParser()),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
	}
}

// AddTick registers the reminder tick.
func (s *Scheduler) AddTick(spec string) error {
	if err := recurrence.ValidateJobSpec(spec); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(spec, func() {
		_, err := s.engine.Tick(context.Background())
		switch {
		case errors.Is(err, ErrTickInProgress):
			s.logger.Warn().Msg("previous reminder tick still running, skipped")
		case err != nil:
			s.logger.Error().Err(err).Msg("reminder tick failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add reminder tick: %w", err)
	}
	return nil
}

// AddPrune registers deletion of markers older than retention.
func (s *Scheduler) AddPrune(spec string, retention time.Duration) error {
	if err := recurrence.ValidateJobSpec(spec); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.engine.Prune(context.Background(), retention); err != nil {
			s.logger.Error().Err(err).Msg("reminder marker prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add marker prune: %w", err)
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", s.Jobs()).Msg("reminder scheduler started")
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info().Msg("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
