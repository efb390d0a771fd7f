package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
)

type reconciler interface {
	ReconcileOccupancy(ctx context.Context) (*booking.ReconcileReport, error)
}

// AdminReconcileOccupancy runs one reconciliation pass on demand.
func AdminReconcileOccupancy(svc reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.ReconcileOccupancy(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(report.Corrections) > 0 || len(report.Anomalies) > 0 || len(report.OverCapacity) > 0 {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"rooms_checked": report.RoomsChecked,
				"corrections":   len(report.Corrections),
				"anomalies":     len(report.Anomalies),
				"over_capacity": len(report.OverCapacity),
			})
			logg.Warn(ctx, "manual reconciliation found drift")
		}
		responses.WriteSuccess(w, report)
	}
}
