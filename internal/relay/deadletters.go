package relay

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/api/validators"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
)

// DeadLetterReader is the read side of the dead-letter table.
type DeadLetterReader interface {
	Recent(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// MountDeadLetters exposes GET /dead-letters and GET /dead-letters/{eventId}
// on the relay's ops server.
func MountDeadLetters(r chi.Router, store DeadLetterReader, logg *logger.Logger) {
	r.Get("/dead-letters", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		var filter outbox.DLQFilter
		if raw := req.URL.Query().Get("reason"); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
				return
			}
			filter.Reason = reason
		}
		limit, err := validators.ParseQueryInt(req, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter.Limit = limit

		rows, err := store.Recent(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, rows)
	})

	r.Get("/dead-letters/{eventId}", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		eventID, err := uuid.Parse(chi.URLParam(req, "eventId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "eventId must be a uuid"))
			return
		}
		row, err := store.FindByEventID(ctx, eventID)
		switch {
		case errors.Is(err, outbox.ErrDeadLetterNotFound):
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event was not dead-lettered"))
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter"))
		default:
			responses.WriteSuccess(w, row)
		}
	})
}
