// Package scheduler wraps gocron for the kiosk's periodic jobs: the document
// refresh, the heartbeat and the outbox resend.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
)

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// New creates a scheduler. A nil clock uses the real clock.
func New(clock clockwork.Clock) (*Scheduler, error) {
	var opts []gocron.SchedulerOption
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler", logfields.Count(len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, cancelling running jobs' contexts.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// JobFunc is a scheduled task. Its context is cancelled on shutdown.
type JobFunc func(ctx context.Context)

// EveryOption adjusts a job created by ScheduleEvery.
type EveryOption func(*everyConfig)

type everyConfig struct {
	immediate bool
	ctx       context.Context
}

// Immediately runs the job once as soon as the scheduler starts.
func Immediately() EveryOption {
	return func(c *everyConfig) { c.immediate = true }
}

// WithContext sets the parent context passed to the job.
func WithContext(ctx context.Context) EveryOption {
	return func(c *everyConfig) { c.ctx = ctx }
}

// ScheduleEvery runs fn every interval. Runs never overlap: a tick that finds
// the previous run still going is skipped.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn JobFunc, opts ...EveryOption) (string, error) {
	if interval <= 0 {
		return "", ferrors.ValidationError("schedule interval must be > 0").
			WithContext("job", name).
			Build()
	}
	var cfg everyConfig
	for _, o := range opts {
		o(&cfg)
	}

	jobOpts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if cfg.immediate {
		jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if cfg.ctx != nil {
		jobOpts = append(jobOpts, gocron.WithContext(cfg.ctx))
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.wrap(name, fn)),
		jobOpts...,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) wrap(name string, fn JobFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scheduled job panicked", logfields.Job(name), slog.Any("panic", r))
			}
		}()
		fn(ctx)
	}
}
