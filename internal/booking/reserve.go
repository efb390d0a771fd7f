package booking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

const opReserve = "reserve"

// Reserve claims an available bed for a student and files a pending
// application for manager review.
func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.RoomApplication, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	if input.BedID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bed id required")
	}
	ctx = s.logg.WithStudentID(ctx, input.StudentID.String())
	ctx = s.logg.WithBedID(ctx, input.BedID.String())

	var application *models.RoomApplication
	err := s.run(ctx, opReserve, func(ctx context.Context) error {
		application = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			bedRepo := s.beds.WithTx(tx)
			appRepo := s.applications.WithTx(tx)

			bed, err := bedRepo.LockForUpdate(ctx, input.BedID)
			if err != nil {
				return notFound(err, "bed not found")
			}
			if bed.Status != enums.BedStatusAvailable {
				return errBedTaken()
			}

			if _, err := s.students.WithTx(tx).FindByID(ctx, input.StudentID); err != nil {
				return notFound(err, "student not found")
			}
			pending, err := appRepo.HasPendingForStudent(ctx, input.StudentID)
			if err != nil {
				return err
			}
			if pending {
				return pkgerrors.New(pkgerrors.CodeDuplicatePending, "student already has a pending application")
			}
			active, err := s.occupancy.WithTx(tx).FindActiveByStudent(ctx, input.StudentID)
			if err != nil {
				return err
			}
			if active != nil {
				return pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "student is already checked in")
			}

			if err := bedRepo.UpdateStatus(ctx, bed, enums.BedStatusReserved); err != nil {
				return err
			}
			record := &models.RoomApplication{
				StudentID: input.StudentID,
				BedID:     input.BedID,
				Status:    enums.ApplicationStatusPending,
				AppliedAt: s.now(),
			}
			if err := appRepo.Create(ctx, record); err != nil {
				if db.IsUniqueViolation(err, "ux_room_applications_pending_student") {
					return pkgerrors.Wrap(pkgerrors.CodeDuplicatePending, err, "student already has a pending application")
				}
				return err
			}
			application = record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     enums.AuditActionReserve,
		EntityType: enums.AuditEntityRoomApplication,
		EntityID:   application.ID,
		ActorID:    &input.StudentID,
		Detail:     "bed " + input.BedID.String() + " reserved",
	})
	return application, nil
}

func errBedTaken() error {
	return pkgerrors.New(pkgerrors.CodeBedNotAvailable, "this bed was just taken, please pick another bed")
}
