package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

const defaultInterval = time.Minute

// Job is one unit of periodic maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type SchedulerParams struct {
	Logger  *logger.Logger
	Lock    Lock
	Metrics *metrics.CronJobMetrics
	Jobs    []Job
	// Interval is the time between cycles. Each job also gets at most one
	// interval to finish.
	Interval time.Duration
}

// Scheduler runs every job once per interval on whichever worker wins the
// lock. Jobs run in registration order and one failing job does not stop the
// rest.
type Scheduler struct {
	logg     *logger.Logger
	lock     Lock
	metrics  *metrics.CronJobMetrics
	jobs     []Job
	interval time.Duration
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	jobs := make([]Job, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		logg:     p.Logger,
		lock:     p.Lock,
		metrics:  p.Metrics,
		jobs:     jobs,
		interval: interval,
	}, nil
}

// Run ticks immediately and then every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one cycle. It reports false when another worker held the lock.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	won, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !won {
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		s.metrics.IncSkipped()
		return false, nil
	}
	defer func() {
		// The cycle ctx may already be canceled on shutdown.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
	}
	return true, nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	jobCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	err := safeRun(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "cron job failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(ctx, "cron job finished")
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("job panicked: %v", v)
		}
	}()
	return job.Run(ctx)
}
