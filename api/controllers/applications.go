package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/dormhousing-backend/api/middleware"
	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/api/validators"
	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/pagination"
)

const maxReasonLength = 500

type decider interface {
	Approve(ctx context.Context, input booking.ApproveInput) (*booking.ApprovalResult, error)
	Reject(ctx context.Context, input booking.RejectInput) (*models.RoomApplication, error)
}

type decisionNotifier interface {
	ApplicationApproved(ctx context.Context, result *booking.ApprovalResult, actor *outbox.ActorRef) error
	ApplicationRejected(ctx context.Context, app *models.RoomApplication, actor *outbox.ActorRef) error
}

type pendingQueue interface {
	ListPending(ctx context.Context, params pagination.Params) (*applications.PendingList, error)
	CountPending(ctx context.Context) (int64, error)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ApproveApplication confirms a pending application and notifies the student.
func ApproveApplication(svc decider, notifier decisionNotifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID, err := pathUUID(r, "applicationId", "application id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithApplicationID(r.Context(), applicationID.String())
		result, err := svc.Approve(ctx, booking.ApproveInput{
			ApplicationID: applicationID,
			ApproverID:    middleware.ActorIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if notifier != nil {
			if err := notifier.ApplicationApproved(ctx, result, actorRef(ctx)); err != nil {
				logg.Error(ctx, "failed to queue approval notification", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}

// RejectApplication closes a pending application and frees its bed.
func RejectApplication(svc decider, notifier decisionNotifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID, err := pathUUID(r, "applicationId", "application id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rejectRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		ctx := logg.WithApplicationID(r.Context(), applicationID.String())
		application, err := svc.Reject(ctx, booking.RejectInput{
			ApplicationID: applicationID,
			Reason:        validators.SanitizeString(req.Reason, maxReasonLength),
			RejectorID:    middleware.ActorIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if notifier != nil {
			if err := notifier.ApplicationRejected(ctx, application, actorRef(ctx)); err != nil {
				logg.Error(ctx, "failed to queue rejection notification", err)
			}
		}
		responses.WriteSuccess(w, application)
	}
}

// ListPendingApplications pages through the approval queue, oldest first.
func ListPendingApplications(queue pendingQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		if _, err := pagination.ParseCursor(cursor); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		page, err := queue.ListPending(r.Context(), pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func CountPendingApplications(queue pendingQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := queue.CountPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"pending": count})
	}
}
