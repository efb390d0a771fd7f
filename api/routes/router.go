package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dormhousing-backend/api/controllers"
	"github.com/angelmondragon/dormhousing-backend/api/middleware"
	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/pagination"
	pkgredis "github.com/angelmondragon/dormhousing-backend/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type pendingQueue interface {
	ListPending(ctx context.Context, params pagination.Params) (*applications.PendingList, error)
	CountPending(ctx context.Context) (int64, error)
}

type notifier interface {
	ApplicationApproved(ctx context.Context, result *booking.ApprovalResult, actor *outbox.ActorRef) error
	ApplicationRejected(ctx context.Context, app *models.RoomApplication, actor *outbox.ActorRef) error
	StudentCheckedIn(ctx context.Context, result *booking.CheckInResult, actor *outbox.ActorRef) error
	StudentCheckedOut(ctx context.Context, result *booking.CheckOutResult, actor *outbox.ActorRef) error
}

// Dependencies are the collaborators the HTTP surface is built on.
type Dependencies struct {
	DB           db.Pinger
	Redis        redisStore
	Booking      booking.Service
	Applications pendingQueue
	Reports      catalog.Service
	Notifier     notifier
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.ClientIP(),
	)

	reservePolicy := middleware.NewRateLimitPolicy(
		"reserve",
		cfg.RateLimit.ReserveWindow,
		cfg.RateLimit.ReserveLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		idempotent := middleware.Idempotency(deps.Redis, logg)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleStudent), idempotent)
			r.With(middleware.RateLimit(reservePolicy, deps.Redis, logg)).
				Post("/reservations", controllers.Reserve(deps.Booking, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleManager, enums.RoleAdmin), idempotent)
			r.Route("/applications", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingApplications(deps.Applications, logg))
				r.Get("/pending/count", controllers.CountPendingApplications(deps.Applications, logg))
				r.Post("/{applicationId}/approve", controllers.ApproveApplication(deps.Booking, deps.Notifier, logg))
				r.Post("/{applicationId}/reject", controllers.RejectApplication(deps.Booking, deps.Notifier, logg))
			})
			r.Post("/check-ins", controllers.CheckIn(deps.Booking, deps.Notifier, logg))
			r.Post("/check-outs", controllers.CheckOut(deps.Booking, deps.Notifier, logg))
			r.Get("/rooms/{roomId}/occupancy", controllers.RoomOccupancy(deps.Reports, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin), idempotent)
			r.Post("/reconcile-occupancy", controllers.AdminReconcileOccupancy(deps.Booking, logg))
		})
	})

	return r
}
