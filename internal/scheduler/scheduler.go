// Package scheduler retries saves that the session store rejected.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retrier flushes pending saves. processor.Processor implements it.
type Retrier interface {
	RetryPending(ctx context.Context) (int, error)
}

// Scheduler runs RetryPending on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	retrier  Retrier
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a scheduler. schedule is a cron expression or descriptor such as
// "@every 1m".
func New(retrier Retrier, schedule string, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		// SkipIfStillRunning keeps a slow store from stacking retries.
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:      ctx,
		cancel:   cancel,
		retrier:  retrier,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// Start registers the retry job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("invalid retry schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Pending save retries scheduled", "schedule", s.schedule)
	return nil
}

// Stop waits for a running job and stops the scheduler.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Scheduler stopped")
}

// IsRunning reports whether a job is registered.
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	saved, err := s.retrier.RetryPending(ctx)
	if err != nil {
		s.logger.Warn("Pending save retry incomplete", "saved", saved, "error", err)
		return
	}
	if saved > 0 {
		s.logger.Info("Pending saves retried", "saved", saved)
	}
}
