// Package scheduler drives deadline sweeps on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper applies whatever deadlines have passed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweeperFunc adapts a function into a Sweeper.
type SweeperFunc func(ctx context.Context) (int, error)

func (f SweeperFunc) Sweep(ctx context.Context) (int, error) { return f(ctx) }

// Job is a named sweeper.
type Job struct {
	Name    string
	Sweeper Sweeper
}

// Service runs every job once per interval. A run that overruns the interval
// delays the next one rather than overlapping it.
type Service struct {
	Interval time.Duration
	Jobs     []Job
	Logger   *zap.Logger

	sched gocron.Scheduler
}

// New creates a scheduler service.
func New(interval time.Duration, logger *zap.Logger, jobs ...Job) (*Service, error) {
	if interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Interval: interval, Jobs: jobs, Logger: logger}, nil
}

// Start registers the jobs and starts ticking. ctx bounds every run.
func (s *Service) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	for _, job := range s.Jobs {
		job := job
		_, err := sched.NewJob(
			gocron.DurationJob(s.Interval),
			gocron.NewTask(func() { s.run(ctx, job) }),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return err
		}
	}
	sched.Start()
	s.sched = sched
	s.Logger.Info("scheduler started", zap.Duration("interval", s.Interval), zap.Int("jobs", len(s.Jobs)))
	return nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *Service) Stop() error {
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	return err
}

// RunOnce runs every job immediately, in order.
func (s *Service) RunOnce(ctx context.Context) {
	for _, job := range s.Jobs {
		s.run(ctx, job)
	}
}

func (s *Service) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.Interval*4)
	defer cancel()

	started := time.Now()
	n, err := job.Sweeper.Sweep(ctx)
	if err != nil {
		s.Logger.Warn("sweep failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if n > 0 {
		s.Logger.Debug("sweep applied deadlines",
			zap.String("job", job.Name),
			zap.Int("moved", n),
			zap.Duration("took", time.Since(started)))
	}
}
