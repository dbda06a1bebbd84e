package usecase

import (
	"context"
	"log/slog"
	"time"

	"Meridiano/internal/ports"
)

// Scheduler wires the cron driver with full pipeline runs over a set of profiles.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	profiles []string
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, profiles []string, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, profiles: profiles, logger: loggerOrDefault(logger)}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled run triggered", "at", trigger, "profiles", s.profiles)
		if _, err := s.pipeline.RunAll(ctx, s.profiles, AllStages()); err != nil {
			s.logger.Error("scheduled run finished with errors", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
