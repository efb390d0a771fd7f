package booking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/beds"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

// flakyTx fails the first n transactions with err before delegating.
type flakyTx struct {
	next  txRunner
	err   error
	fails int32
	calls atomic.Int32
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if f.calls.Add(1) <= f.fails {
		return f.err
	}
	return f.next.WithTx(ctx, fn)
}

func TestRetryableConflictsAreRetried(t *testing.T) {
	var flaky *flakyTx
	h := newHarnessWithTx(t, func(next txRunner) txRunner {
		flaky = &flakyTx{next: next, err: &pgconn.PgError{Code: "40001"}, fails: 2}
		return flaky
	})
	ctx := context.Background()
	_, beds := h.room(t, "101", 1)
	student := h.student(t, "S1")

	_, err := h.svc.Reserve(ctx, ReserveInput{StudentID: student.ID, BedID: beds[0].ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, flaky.calls.Load())
	require.EqualValues(t, 2, counterValue(t, h.registry, "dormhousing_booking_retries_total", map[string]string{"operation": "reserve"}))
}

func TestRetriesStopAtConfiguredAttempts(t *testing.T) {
	var flaky *flakyTx
	h := newHarnessWithTx(t, func(next txRunner) txRunner {
		flaky = &flakyTx{next: next, err: beds.ErrVersionConflict, fails: 10}
		return flaky
	})
	ctx := context.Background()
	student := h.student(t, "S1")

	_, err := h.svc.CheckOut(ctx, CheckOutInput{StudentID: student.ID})
	requireCode(t, err, pkgerrors.CodeConcurrentModification)
	require.True(t, pkgerrors.IsRetryable(err))
	require.EqualValues(t, 3, flaky.calls.Load())
	require.EqualValues(t, 1, counterValue(t, h.registry, "dormhousing_booking_operations_total", map[string]string{"operation": "check_out", "outcome": "conflict"}))
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	var flaky *flakyTx
	h := newHarnessWithTx(t, func(next txRunner) txRunner {
		flaky = &flakyTx{next: next}
		return flaky
	})
	student := h.student(t, "S1")

	_, err := h.svc.CheckOut(context.Background(), CheckOutInput{StudentID: student.ID})
	requireCode(t, err, pkgerrors.CodeNotCheckedIn)
	require.EqualValues(t, 1, flaky.calls.Load())
}

func TestClassify(t *testing.T) {
	typed := pkgerrors.New(pkgerrors.CodeBedOccupied, "taken")
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"typed passthrough", typed, pkgerrors.CodeBedOccupied},
		{"version conflict", beds.ErrVersionConflict, pkgerrors.CodeConcurrentModification},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, pkgerrors.CodeConcurrentModification},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, pkgerrors.CodeConcurrentModification},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, pkgerrors.CodeSystem},
		{"statement canceled", &pgconn.PgError{Code: "57014"}, pkgerrors.CodeSystem},
		{"deadline", context.DeadlineExceeded, pkgerrors.CodeSystem},
		{"not found", gorm.ErrRecordNotFound, pkgerrors.CodeNotFound},
		{"other", errors.New("connection reset"), pkgerrors.CodeSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, classify(tc.err), tc.want)
		})
	}
	require.NoError(t, classify(nil))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{}, Options{})
	require.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	require.Equal(t, 5*time.Second, opts.TxTimeout)
	require.Equal(t, 1, opts.RetryAttempts)
	require.Equal(t, 50*time.Millisecond, opts.RetryBaseDelay)
}
