package booking

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

const contenders = 8

func TestConcurrentDirectCheckInsSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, beds := h.room(t, "101", 1)
	students := make([]*models.Student, contenders)
	for i := range students {
		students[i] = h.student(t, "C"+string(rune('A'+i)))
	}

	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.DirectCheckIn(ctx, DirectCheckInInput{StudentID: students[i].ID, BedID: beds[0].ID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireCode(t, err, pkgerrors.CodeBedNotAvailable)
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, h.reloadRoom(t, room.ID).CurrentOccupancy)

	var active int64
	require.NoError(t, h.db.Model(&models.OccupancyRecord{}).Where("status = ?", enums.OccupancyStatusActive).Count(&active).Error)
	require.EqualValues(t, 1, active)
}

func TestConcurrentReservesSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, beds := h.room(t, "101", 1)
	students := make([]*models.Student, contenders)
	for i := range students {
		students[i] = h.student(t, "R"+string(rune('A'+i)))
	}

	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Reserve(ctx, ReserveInput{StudentID: students[i].ID, BedID: beds[0].ID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireCode(t, err, pkgerrors.CodeBedNotAvailable)
	}
	require.Equal(t, 1, wins)

	pending, err := h.apps.CountPending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)
	require.Equal(t, enums.BedStatusReserved, h.reloadBed(t, beds[0].ID).Status)
}

func TestConcurrentReserveApproveAndCheckInNeverDoubleBook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, beds := h.room(t, "101", 1)
	students := make([]*models.Student, contenders)
	for i := range students {
		students[i] = h.student(t, "M"+string(rune('A'+i)))
	}

	var wg sync.WaitGroup
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = h.svc.DirectCheckIn(ctx, DirectCheckInInput{StudentID: students[i].ID, BedID: beds[0].ID})
				return
			}
			application, err := h.svc.Reserve(ctx, ReserveInput{StudentID: students[i].ID, BedID: beds[0].ID})
			if err != nil {
				return
			}
			_, _ = h.svc.Approve(ctx, ApproveInput{ApplicationID: application.ID})
		}(i)
	}
	wg.Wait()

	var active int64
	require.NoError(t, h.db.Model(&models.OccupancyRecord{}).Where("bed_id = ? AND status = ?", beds[0].ID, enums.OccupancyStatusActive).Count(&active).Error)
	require.EqualValues(t, 1, active)
	require.Equal(t, enums.BedStatusOccupied, h.reloadBed(t, beds[0].ID).Status)
	require.Equal(t, 1, h.reloadRoom(t, room.ID).CurrentOccupancy)

	report, err := h.svc.ReconcileOccupancy(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Corrections)
}
