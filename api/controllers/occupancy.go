package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormhousing-backend/api/middleware"
	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/api/validators"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
)

type occupancyDesk interface {
	DirectCheckIn(ctx context.Context, input booking.DirectCheckInInput) (*booking.CheckInResult, error)
	CheckOut(ctx context.Context, input booking.CheckOutInput) (*booking.CheckOutResult, error)
}

type occupancyNotifier interface {
	StudentCheckedIn(ctx context.Context, result *booking.CheckInResult, actor *outbox.ActorRef) error
	StudentCheckedOut(ctx context.Context, result *booking.CheckOutResult, actor *outbox.ActorRef) error
}

type roomReporter interface {
	RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*catalog.OccupancyReport, error)
}

type checkInRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	BedID     uuid.UUID `json:"bed_id" validate:"required"`
}

type checkOutRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
}

// CheckIn places a walk-in student directly into an available bed.
func CheckIn(svc occupancyDesk, notifier occupancyNotifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithBedID(logg.WithStudentID(r.Context(), req.StudentID.String()), req.BedID.String())
		result, err := svc.DirectCheckIn(ctx, booking.DirectCheckInInput{
			StudentID: req.StudentID,
			BedID:     req.BedID,
			ActorID:   middleware.ActorIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if notifier != nil {
			if err := notifier.StudentCheckedIn(ctx, result, actorRef(ctx)); err != nil {
				logg.Error(ctx, "failed to queue check-in notification", err)
			}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckOut ends the student's active occupancy and frees the bed.
func CheckOut(svc occupancyDesk, notifier occupancyNotifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkOutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithStudentID(r.Context(), req.StudentID.String())
		result, err := svc.CheckOut(ctx, booking.CheckOutInput{
			StudentID: req.StudentID,
			ActorID:   middleware.ActorIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if notifier != nil {
			if err := notifier.StudentCheckedOut(ctx, result, actorRef(ctx)); err != nil {
				logg.Error(ctx, "failed to queue check-out notification", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}

func RoomOccupancy(reporter roomReporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := pathUUID(r, "roomId", "room id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := reporter.RoomOccupancy(r.Context(), roomID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
