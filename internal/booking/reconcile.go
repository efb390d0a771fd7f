package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

const opReconcile = "reconcile"

// ReconcileOccupancy recomputes room counters from bed rows and reports
// anomalies. Only counters are written; bed and application state is left alone.
func (s *service) ReconcileOccupancy(ctx context.Context) (*ReconcileReport, error) {
	snapshot, err := s.catalog.OccupancySnapshot(ctx)
	if err != nil {
		return nil, classify(err)
	}

	report := &ReconcileReport{
		RoomsChecked: len(snapshot),
		Corrections:  []RoomCorrection{},
		OverCapacity: []OverCapacity{},
	}
	for _, row := range snapshot {
		if row.OccupiedBeds > row.Capacity {
			report.OverCapacity = append(report.OverCapacity, OverCapacity{
				RoomID:   row.RoomID,
				Capacity: row.Capacity,
				Occupied: row.OccupiedBeds,
			})
		}
		if !row.Drifted() {
			continue
		}
		correction, err := s.repairRoom(ctx, row.RoomID)
		if err != nil {
			return nil, err
		}
		if correction != nil {
			report.Corrections = append(report.Corrections, *correction)
		}
	}

	anomalies, err := s.applications.FindAnomalies(ctx)
	if err != nil {
		return nil, classify(err)
	}
	report.Anomalies = anomalies

	s.metrics.AddRepairs(len(report.Corrections))
	if len(report.Corrections) > 0 || len(anomalies) > 0 || len(report.OverCapacity) > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"corrections":   len(report.Corrections),
			"anomalies":     len(anomalies),
			"over_capacity": len(report.OverCapacity),
		}), "occupancy reconciliation found drift")
	}
	for _, correction := range report.Corrections {
		s.audit.Record(ctx, audit.Entry{
			Action:     enums.AuditActionReconcile,
			EntityType: enums.AuditEntityRoom,
			EntityID:   correction.RoomID,
			Detail:     fmt.Sprintf("current_occupancy %d -> %d", correction.Previous, correction.Actual),
		})
	}
	return report, nil
}

// repairRoom locks every bed of the room so the count cannot move while the
// counter is overwritten.
func (s *service) repairRoom(ctx context.Context, roomID uuid.UUID) (*RoomCorrection, error) {
	var correction *RoomCorrection
	err := s.run(ctx, opReconcile, func(ctx context.Context) error {
		correction = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			locked, err := s.beds.WithTx(tx).LockByRoom(ctx, roomID)
			if err != nil {
				return err
			}
			actual := 0
			for _, bed := range locked {
				if bed.Status == enums.BedStatusOccupied {
					actual++
				}
			}
			catalogRepo := s.catalog.WithTx(tx)
			room, err := catalogRepo.FindRoom(ctx, roomID)
			if err != nil {
				return err
			}
			if room.CurrentOccupancy == actual {
				return nil
			}
			if err := catalogRepo.SetOccupancy(ctx, roomID, actual); err != nil {
				return err
			}
			correction = &RoomCorrection{RoomID: roomID, Previous: room.CurrentOccupancy, Actual: actual}
			return nil
		})
	})
	return correction, err
}
