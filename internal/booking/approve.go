package booking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/students"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

const (
	opApprove = "approve"
	opReject  = "reject"
)

// Approve turns a pending application into an occupancy. When the bed was
// taken by a direct check-in in the meantime the application is rejected
// instead and BED_OCCUPIED is returned.
func (s *service) Approve(ctx context.Context, input ApproveInput) (*ApprovalResult, error) {
	if input.ApplicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	ctx = s.logg.WithApplicationID(ctx, input.ApplicationID.String())

	var (
		result  *ApprovalResult
		lostBed *models.RoomApplication
	)
	err := s.run(ctx, opApprove, func(ctx context.Context) error {
		result, lostBed = nil, nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			appRepo := s.applications.WithTx(tx)
			bedRepo := s.beds.WithTx(tx)

			application, err := appRepo.FindByID(ctx, input.ApplicationID)
			if err != nil {
				return notFound(err, "application not found")
			}
			if application.Status != enums.ApplicationStatusPending {
				return errAlreadyProcessed()
			}

			bed, err := bedRepo.LockForUpdate(ctx, application.BedID)
			if err != nil {
				return notFound(err, "bed not found")
			}
			// Re-read under the bed lock; a concurrent decision may have committed.
			application, err = appRepo.LockForUpdate(ctx, input.ApplicationID)
			if err != nil {
				return err
			}
			if application.Status != enums.ApplicationStatusPending {
				return errAlreadyProcessed()
			}

			now := s.now()
			if bed.Status == enums.BedStatusOccupied {
				ok, err := appRepo.MarkRejected(ctx, application.ID, input.ApproverID, ReasonBedUnavailable, now)
				if err != nil {
					return err
				}
				if !ok {
					return errAlreadyProcessed()
				}
				rejected, err := appRepo.FindByID(ctx, application.ID)
				if err != nil {
					return err
				}
				lostBed = rejected
				return nil
			}

			active, err := s.occupancy.WithTx(tx).FindActiveByStudent(ctx, application.StudentID)
			if err != nil {
				return err
			}
			if active != nil {
				return pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "student is already checked in")
			}

			if err := bedRepo.UpdateStatus(ctx, bed, enums.BedStatusOccupied); err != nil {
				return err
			}
			if err := s.catalog.WithTx(tx).IncrementOccupancy(ctx, bed.RoomID); err != nil {
				return err
			}
			placement, err := s.lookupPlacement(ctx, tx, bed)
			if err != nil {
				return err
			}
			if err := s.students.WithTx(tx).SetLocation(ctx, application.StudentID, students.Location{
				Building: placement.BuildingName,
				Room:     placement.RoomLabel,
				Bed:      placement.BedLabel,
			}); err != nil {
				return notFound(err, "student not found")
			}
			record, err := s.occupancy.WithTx(tx).Open(ctx, application.StudentID, bed.ID, now)
			if err != nil {
				return err
			}
			ok, err := appRepo.MarkApproved(ctx, application.ID, input.ApproverID, now)
			if err != nil {
				return err
			}
			if !ok {
				return errAlreadyProcessed()
			}
			approved, err := appRepo.FindByID(ctx, application.ID)
			if err != nil {
				return err
			}

			result = &ApprovalResult{
				Application: approved,
				Record:      record,
				Placement:   placement,
				Message:     placement.Describe(),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if lostBed != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:     enums.AuditActionRejectApplication,
			EntityType: enums.AuditEntityRoomApplication,
			EntityID:   lostBed.ID,
			ActorID:    input.ApproverID,
			Detail:     ReasonBedUnavailable,
		})
		return nil, pkgerrors.New(pkgerrors.CodeBedOccupied, ReasonBedUnavailable).
			WithDetails(map[string]any{"application_id": lostBed.ID, "status": lostBed.Status})
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     enums.AuditActionApproveApplication,
		EntityType: enums.AuditEntityRoomApplication,
		EntityID:   result.Application.ID,
		ActorID:    input.ApproverID,
		Detail:     result.Message,
	})
	return result, nil
}

// Reject declines a pending application and frees its reserved bed.
func (s *service) Reject(ctx context.Context, input RejectInput) (*models.RoomApplication, error) {
	if input.ApplicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	reason := input.Reason
	if reason == "" {
		reason = DefaultRejectReason
	}
	ctx = s.logg.WithApplicationID(ctx, input.ApplicationID.String())

	var rejected *models.RoomApplication
	err := s.run(ctx, opReject, func(ctx context.Context) error {
		rejected = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			appRepo := s.applications.WithTx(tx)
			bedRepo := s.beds.WithTx(tx)

			application, err := appRepo.FindByID(ctx, input.ApplicationID)
			if err != nil {
				return notFound(err, "application not found")
			}
			if application.Status != enums.ApplicationStatusPending {
				return errAlreadyProcessed()
			}

			bed, err := bedRepo.LockForUpdate(ctx, application.BedID)
			if err != nil {
				return notFound(err, "bed not found")
			}
			application, err = appRepo.LockForUpdate(ctx, input.ApplicationID)
			if err != nil {
				return err
			}
			if application.Status != enums.ApplicationStatusPending {
				return errAlreadyProcessed()
			}

			if bed.Status == enums.BedStatusReserved {
				if err := bedRepo.UpdateStatus(ctx, bed, enums.BedStatusAvailable); err != nil {
					return err
				}
			}
			ok, err := appRepo.MarkRejected(ctx, application.ID, input.RejectorID, reason, s.now())
			if err != nil {
				return err
			}
			if !ok {
				return errAlreadyProcessed()
			}
			rejected, err = appRepo.FindByID(ctx, application.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     enums.AuditActionRejectApplication,
		EntityType: enums.AuditEntityRoomApplication,
		EntityID:   rejected.ID,
		ActorID:    input.RejectorID,
		Detail:     reason,
	})
	return rejected, nil
}

func errAlreadyProcessed() error {
	return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "application has already been processed")
}
