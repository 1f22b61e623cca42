// Package tasks runs the periodic jobs of the service.
package tasks

import (
	"context"
	"fmt"
	"time"

	"optin-backend/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs the expiry sweep once a minute
const DefaultSchedule = "@every 1m"

// SweepRunner performs one expiry sweep
type SweepRunner interface {
	Run(ctx context.Context) (*services.SweepResult, error)
}

// Sweeper triggers the expiry sweep on a cron schedule.
// A sweep still running when the next one is due makes that one skip.
type Sweeper struct {
	cron    *cron.Cron
	runner  SweepRunner
	timeout time.Duration
}

// NewSweeper schedules runner with a standard cron spec or descriptor such as "@every 1m".
// Each sweep gets timeout to finish.
func NewSweeper(runner SweepRunner, schedule string, timeout time.Duration) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = 50 * time.Second
	}

	logger := cronLogger{}
	s := &Sweeper{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:  runner,
		timeout: timeout,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("Sweep scheduler started")
}

// Stop stops scheduling and waits up to ctx for a running sweep
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Sweep still running at shutdown")
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled sweep failed")
	}
}

// cronLogger writes cron's own logs through zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
