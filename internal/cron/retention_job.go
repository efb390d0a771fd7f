package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
)

const (
	defaultRetention  = 30 * 24 * time.Hour
	retentionBatch    = 1000
	maxBatchesPerTick = 20
)

// Sweep deletes rows older than a cutoff, at most limit per call.
type Sweep struct {
	Table     string
	Retention time.Duration
	Delete    func(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewRetentionJob purges old rows from each sweep's table in small batches.
// A table with more than maxBatchesPerTick batches of backlog is finished on
// later ticks.
func NewRetentionJob(logg *logger.Logger, sweeps ...Sweep) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if len(sweeps) == 0 {
		return nil, errors.New("at least one sweep required")
	}
	for i := range sweeps {
		if sweeps[i].Delete == nil {
			return nil, fmt.Errorf("sweep %q has no delete func", sweeps[i].Table)
		}
		if sweeps[i].Retention <= 0 {
			sweeps[i].Retention = defaultRetention
		}
	}
	return &retentionJob{logg: logg, sweeps: sweeps, now: time.Now}, nil
}

type retentionJob struct {
	logg   *logger.Logger
	sweeps []Sweep
	now    func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	var errs error
	for _, sweep := range j.sweeps {
		if err := j.sweep(ctx, sweep); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (j *retentionJob) sweep(ctx context.Context, s Sweep) error {
	cutoff := j.now().UTC().Add(-s.Retention)
	var total int64
	for batch := 0; batch < maxBatchesPerTick; batch++ {
		deleted, err := s.Delete(ctx, cutoff, retentionBatch)
		total += deleted
		if err != nil {
			return fmt.Errorf("purge %s: %w", s.Table, err)
		}
		if deleted < retentionBatch || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"table":        s.Table,
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "retention sweep complete")
	return nil
}
