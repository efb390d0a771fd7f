package booking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/students"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

const (
	opCheckIn  = "check_in"
	opCheckOut = "check_out"
)

// DirectCheckIn places a student in an available bed without an application.
// The conditional bed transition is the only guard against a concurrent claim.
func (s *service) DirectCheckIn(ctx context.Context, input DirectCheckInInput) (*CheckInResult, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	if input.BedID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bed id required")
	}
	ctx = s.logg.WithStudentID(ctx, input.StudentID.String())
	ctx = s.logg.WithBedID(ctx, input.BedID.String())

	var result *CheckInResult
	err := s.run(ctx, opCheckIn, func(ctx context.Context) error {
		result = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			bedRepo := s.beds.WithTx(tx)
			occRepo := s.occupancy.WithTx(tx)

			applied, err := bedRepo.TryTransition(ctx, input.BedID, enums.BedStatusAvailable, enums.BedStatusOccupied)
			if err != nil {
				return err
			}
			bed, err := bedRepo.FindByID(ctx, input.BedID)
			if err != nil {
				return notFound(err, "bed not found")
			}
			if !applied {
				return errBedTaken()
			}

			if _, err := s.students.WithTx(tx).FindByID(ctx, input.StudentID); err != nil {
				return notFound(err, "student not found")
			}
			active, err := occRepo.FindActiveByStudent(ctx, input.StudentID)
			if err != nil {
				return err
			}
			if active != nil {
				return pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "student is already checked in")
			}

			if err := s.catalog.WithTx(tx).IncrementOccupancy(ctx, bed.RoomID); err != nil {
				return err
			}
			placement, err := s.lookupPlacement(ctx, tx, bed)
			if err != nil {
				return err
			}
			if err := s.students.WithTx(tx).SetLocation(ctx, input.StudentID, students.Location{
				Building: placement.BuildingName,
				Room:     placement.RoomLabel,
				Bed:      placement.BedLabel,
			}); err != nil {
				return notFound(err, "student not found")
			}
			record, err := occRepo.Open(ctx, input.StudentID, bed.ID, s.now())
			if err != nil {
				return err
			}
			result = &CheckInResult{Record: record, Placement: placement, Message: placement.Describe()}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     enums.AuditActionCheckIn,
		EntityType: enums.AuditEntityStudent,
		EntityID:   input.StudentID,
		ActorID:    input.ActorID,
		Detail:     result.Message,
	})
	return result, nil
}

// CheckOut ends the student's active stay and releases the bed.
func (s *service) CheckOut(ctx context.Context, input CheckOutInput) (*CheckOutResult, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	ctx = s.logg.WithStudentID(ctx, input.StudentID.String())

	var result *CheckOutResult
	err := s.run(ctx, opCheckOut, func(ctx context.Context) error {
		result = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			bedRepo := s.beds.WithTx(tx)
			occRepo := s.occupancy.WithTx(tx)

			record, err := occRepo.FindActiveByStudent(ctx, input.StudentID)
			if err != nil {
				return err
			}
			if record == nil {
				return errNotCheckedIn()
			}

			bed, err := bedRepo.LockForUpdate(ctx, record.BedID)
			if err != nil {
				return notFound(err, "bed not found")
			}
			now := s.now()
			closed, err := occRepo.Close(ctx, record.ID, now)
			if err != nil {
				return err
			}
			if !closed {
				return errNotCheckedIn()
			}

			if bed.Status == enums.BedStatusOccupied {
				if err := bedRepo.UpdateStatus(ctx, bed, enums.BedStatusAvailable); err != nil {
					return err
				}
				if err := s.catalog.WithTx(tx).DecrementOccupancy(ctx, bed.RoomID); err != nil {
					return err
				}
			} else {
				s.logg.Warn(s.logg.WithField(ctx, "bed_status", string(bed.Status)), "active stay on a bed that is not occupied")
			}

			if err := s.students.WithTx(tx).ClearLocation(ctx, input.StudentID); err != nil {
				return notFound(err, "student not found")
			}
			placement, err := s.lookupPlacement(ctx, tx, bed)
			if err != nil {
				return err
			}

			record.Status = enums.OccupancyStatusClosed
			record.CheckOutDate = &now
			result = &CheckOutResult{Record: record, Placement: placement}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     enums.AuditActionCheckOut,
		EntityType: enums.AuditEntityStudent,
		EntityID:   input.StudentID,
		ActorID:    input.ActorID,
		Detail:     result.Placement.Describe(),
	})
	return result, nil
}

func errNotCheckedIn() error {
	return pkgerrors.New(pkgerrors.CodeNotCheckedIn, "student is not checked in")
}
