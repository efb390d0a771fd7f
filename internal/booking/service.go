package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/beds"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/internal/occupancy"
	"github.com/angelmondragon/dormhousing-backend/internal/students"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service is the booking engine. Every operation runs in one transaction and
// is retried from scratch on retryable conflicts.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.RoomApplication, error)
	Approve(ctx context.Context, input ApproveInput) (*ApprovalResult, error)
	Reject(ctx context.Context, input RejectInput) (*models.RoomApplication, error)
	DirectCheckIn(ctx context.Context, input DirectCheckInInput) (*CheckInResult, error)
	CheckOut(ctx context.Context, input CheckOutInput) (*CheckOutResult, error)
	ReconcileOccupancy(ctx context.Context) (*ReconcileReport, error)
}

// Options tunes timeouts and retries.
type Options struct {
	TxTimeout      time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TxTimeout <= 0 {
		o.TxTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 50 * time.Millisecond
	}
	return o
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Tx           txRunner
	Beds         beds.Repository
	Catalog      catalog.Repository
	Applications applications.Repository
	Occupancy    occupancy.Repository
	Students     students.Repository
	Audit        auditRecorder
	Metrics      *metrics.BookingMetrics
	Logger       *logger.Logger
}

type service struct {
	tx           txRunner
	beds         beds.Repository
	catalog      catalog.Repository
	applications applications.Repository
	occupancy    occupancy.Repository
	students     students.Repository
	audit        auditRecorder
	metrics      *metrics.BookingMetrics
	logg         *logger.Logger
	opts         Options
	now          func() time.Time
}

// NewService builds the booking engine.
func NewService(deps Deps, opts Options) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Beds == nil {
		return nil, fmt.Errorf("beds repository required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deps.Applications == nil {
		return nil, fmt.Errorf("applications repository required")
	}
	if deps.Occupancy == nil {
		return nil, fmt.Errorf("occupancy repository required")
	}
	if deps.Students == nil {
		return nil, fmt.Errorf("students repository required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Audit == nil {
		deps.Audit = noopAudit{}
	}
	return &service{
		tx:           deps.Tx,
		beds:         deps.Beds,
		catalog:      deps.Catalog,
		applications: deps.Applications,
		occupancy:    deps.Occupancy,
		students:     deps.Students,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
		opts:         opts.withDefaults(),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, audit.Entry) {}

// run executes fn with a per-attempt timeout, retrying retryable failures
// with exponential backoff.
func (s *service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.opts.RetryAttempts-1), retry.NewExponential(s.opts.RetryBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.IncRetry(op)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()

		err := classify(fn(attemptCtx))
		if err != nil && pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	err = classify(err)

	s.metrics.Observe(op, outcomeFor(err), time.Since(start))
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"booking_op": op,
			"attempts":   attempt,
			"error_code": string(pkgerrors.As(err).Code()),
		})
		if outcomeFor(err) == metrics.OutcomeError {
			s.logg.Error(logCtx, "booking operation failed", err)
		} else {
			s.logg.Warn(logCtx, "booking operation refused")
		}
	}
	return err
}

func (s *service) lookupPlacement(ctx context.Context, tx *gorm.DB, bed *models.Bed) (Placement, error) {
	loc, err := s.catalog.WithTx(tx).BedLocation(ctx, bed.ID)
	if err != nil {
		return Placement{}, err
	}
	return placementFrom(loc), nil
}
