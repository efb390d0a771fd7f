package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
)

type occupancyReconciler interface {
	ReconcileOccupancy(ctx context.Context) (*booking.ReconcileReport, error)
}

type ReconcileOccupancyJobParams struct {
	Logger     *logger.Logger
	Reconciler occupancyReconciler
}

// NewReconcileOccupancyJob repairs drifted room counters on every cycle.
func NewReconcileOccupancyJob(params ReconcileOccupancyJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileOccupancyJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type reconcileOccupancyJob struct {
	logg       *logger.Logger
	reconciler occupancyReconciler
}

func (j *reconcileOccupancyJob) Name() string { return "reconcile-occupancy" }

func (j *reconcileOccupancyJob) Run(ctx context.Context) error {
	report, err := j.reconciler.ReconcileOccupancy(ctx)
	if err != nil {
		return fmt.Errorf("reconcile occupancy: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rooms_checked": report.RoomsChecked,
		"corrections":   len(report.Corrections),
		"anomalies":     len(report.Anomalies),
		"over_capacity": len(report.OverCapacity),
	})
	if len(report.Anomalies) > 0 || len(report.OverCapacity) > 0 {
		j.logg.Warn(logCtx, "occupancy reconciliation found anomalies")
		return nil
	}
	j.logg.Info(logCtx, "occupancy reconciliation complete")
	return nil
}
