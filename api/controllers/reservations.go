package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dormhousing-backend/api/middleware"
	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/api/validators"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
)

type reserver interface {
	Reserve(ctx context.Context, input booking.ReserveInput) (*models.RoomApplication, error)
}

type reserveRequest struct {
	BedID string `json:"bed_id" validate:"required,uuid"`
}

// Reserve places the calling student's pending application on a bed.
func Reserve(svc reserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := middleware.ActorIDFromContext(r.Context())
		if studentID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "student identity missing"))
			return
		}

		var req reserveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bedID, err := uuid.Parse(req.BedID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bed id"))
			return
		}

		ctx := logg.WithBedID(logg.WithStudentID(r.Context(), studentID.String()), bedID.String())
		application, err := svc.Reserve(ctx, booking.ReserveInput{StudentID: *studentID, BedID: bedID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, application)
	}
}

func actorRef(ctx context.Context) *outbox.ActorRef {
	id := middleware.ActorIDFromContext(ctx)
	if id == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *id, Role: middleware.RoleFromContext(ctx)}
}

func pathUUID(r *http.Request, key, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}
