package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Scheduler triggers acquisition runs on a fixed cadence. Singleton mode
// guarantees a run finishes before the next trigger is eligible.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler with the given cadence.
func New(interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules runFn and begins executing it, first run immediately.
// runFn receives ctx so shutdown cancels an in-flight run.
func (s *Scheduler) Start(ctx context.Context, runFn func(context.Context)) error {
	job, err := s.scheduler.Every(s.interval).StartImmediately().Do(func() {
		runFn(ctx)
	})
	if err != nil {
		return err
	}
	// No overlapping runs: a trigger firing while a run is active is skipped.
	job.SingletonMode()

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}
