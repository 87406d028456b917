package dirbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
)

// pruneSchedule runs the retention prune once a day.
const pruneSchedule = "@daily"

// scheduler drives recurring reconciliation runs and the retention
// prune through a cron runner.
type scheduler struct {
	d *dirbridge

	mu   sync.Mutex
	cron *cron.Cron
}

func newScheduler(d *dirbridge) *scheduler {
	return &scheduler{d: d}
}

// start begins scheduled operation with the given cron expression. The
// SkipIfStillRunning wrapper upholds the at-most-one-concurrent-run
// contract; an overdue tick is dropped, not queued.
func (s *scheduler) start(ctx context.Context, expression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.NewConfigError("scheduler", "already started", nil)
	}

	logger := logging.FromContext(ctx)
	runner := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))

	if _, err := runner.AddFunc(expression, func() { s.d.scheduledRun(ctx) }); err != nil {
		return errors.NewConfigError("scheduler", fmt.Sprintf("invalid cron expression %q", expression), err)
	}
	if _, err := runner.AddFunc(pruneSchedule, func() { s.d.pruneRuns(ctx) }); err != nil {
		return errors.NewConfigError("scheduler", "invalid prune schedule", err)
	}

	runner.Start()
	s.cron = runner
	logger.Info().Str("schedule", expression).Msg("Scheduler started")
	return nil
}

// stop halts the cron runner and waits for a job in flight.
func (s *scheduler) stop() {
	s.mu.Lock()
	runner := s.cron
	s.cron = nil
	s.mu.Unlock()

	if runner != nil {
		<-runner.Stop().Done()
	}
}

// cronLogger adapts the zerolog logger to the cron.Logger interface.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
