package booking

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/beds"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

// classify maps store and infrastructure failures onto booking error codes.
// Typed errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, beds.ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "bed changed concurrently")
	case db.IsSerializationFailure(err), db.IsDeadlock(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "transaction conflicted with a concurrent update")
	case db.IsLockTimeout(err):
		return pkgerrors.Wrap(pkgerrors.CodeSystem, err, "timed out waiting for a lock")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeSystem, err, "operation timed out")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record not found")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeSystem, err, "booking storage failure")
	}
}

// outcomeFor buckets an error into a metrics outcome label.
func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeBedNotAvailable,
		pkgerrors.CodeBedOccupied,
		pkgerrors.CodeDuplicatePending,
		pkgerrors.CodeAlreadyProcessed,
		pkgerrors.CodeAlreadyCheckedIn,
		pkgerrors.CodeNotCheckedIn,
		pkgerrors.CodeConcurrentModification:
		return metrics.OutcomeConflict
	case pkgerrors.CodeNotFound, pkgerrors.CodeValidation:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	}
	return err
}
