package usecase

import (
	"context"
	"log/slog"
	"time"

	"FinNewsScanner/internal/ports"
)

// CycleRunner executes one crawl cycle.
type CycleRunner interface {
	RunOnce(ctx context.Context) (CycleReport, error)
}

// Scheduler wires a cron-like driver with the crawl orchestrator.
type Scheduler struct {
	driver ports.Scheduler
	runner CycleRunner
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring crawl cycles.
func NewScheduler(driver ports.Scheduler, runner CycleRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, runner: runner, logger: logger}
}

// Start registers the crawl cycle with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.runner.RunOnce(ctx); err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.Warn("scheduled crawl cycle failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// Run starts the driver and blocks until ctx is cancelled. Stop waits for
// a running cycle to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.WithoutCancel(ctx))
}
