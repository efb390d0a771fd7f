package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type funcJob struct {
	name string
	fn   func(context.Context) error
	runs int
}

func (j *funcJob) Name() string { return j.name }

func (j *funcJob) Run(ctx context.Context) error {
	j.runs++
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func newTestScheduler(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Jobs:     jobs,
		Interval: time.Second,
	})
	require.NoError(t, err)
	return s
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestTickRunsEveryJobDespiteFailures(t *testing.T) {
	lock := &fakeLock{}
	failing := &funcJob{name: "fail", fn: func(context.Context) error { return errors.New("boom") }}
	panicking := &funcJob{name: "panic", fn: func(context.Context) error { panic("nil room") }}
	ok := &funcJob{name: "ok"}

	ran, err := newTestScheduler(t, lock, nil, failing, panicking, ok).Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, failing.runs)
	require.Equal(t, 1, panicking.runs)
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &funcJob{name: "reconcile-occupancy"}

	ran, err := newTestScheduler(t, &fakeLock{held: true}, reg, job).Tick(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, job.runs)
	require.Equal(t, float64(1), counter(t, reg, "dormhousing_cron_cycle_skipped_total"))
}

func TestJobsGetIntervalDeadline(t *testing.T) {
	var deadline time.Time
	job := &funcJob{name: "deadline", fn: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	before := time.Now()
	_, err := newTestScheduler(t, &fakeLock{}, nil, job).Tick(context.Background())
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(time.Second), deadline, 500*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &funcJob{name: "once"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestScheduler(t, &fakeLock{}, nil, job).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, job.runs)
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(SchedulerParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewScheduler(SchedulerParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	require.Error(t, err)
}
