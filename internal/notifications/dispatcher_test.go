package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox/payloads"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB) {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	logg := logger.New(logger.Options{Output: io.Discard})
	dispatcher, err := NewDispatcher(db.NewWithConn(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	require.NoError(t, err)
	return dispatcher, conn
}

func decodeData(t *testing.T, row models.OutboxEvent, target any) {
	t.Helper()
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func TestApplicationApprovedQueuesOnce(t *testing.T) {
	dispatcher, conn := newTestDispatcher(t)
	ctx := context.Background()
	manager := uuid.New()
	processed := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	result := &booking.ApprovalResult{
		Application: &models.RoomApplication{
			ID:          uuid.New(),
			StudentID:   uuid.New(),
			Status:      enums.ApplicationStatusApproved,
			ProcessedAt: &processed,
			ProcessedBy: &manager,
		},
		Placement: booking.Placement{BuildingName: "North Hall", RoomLabel: "101", BedLabel: "2"},
	}
	actor := &outbox.ActorRef{UserID: manager, Role: "manager"}

	require.NoError(t, dispatcher.ApplicationApproved(ctx, result, actor))
	require.NoError(t, dispatcher.ApplicationApproved(ctx, result, actor))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventApplicationApproved, rows[0].EventType)
	require.Equal(t, result.Application.ID, rows[0].AggregateID)

	var payload payloads.ApplicationApprovedEvent
	decodeData(t, rows[0], &payload)
	require.Equal(t, "North Hall room 101 bed 2", payload.Placement.Description)
	require.True(t, payload.ApprovedAt.Equal(processed))
}

func TestApplicationRejectedUsesStoredReason(t *testing.T) {
	dispatcher, conn := newTestDispatcher(t)
	reason := "bed no longer available"
	app := &models.RoomApplication{ID: uuid.New(), StudentID: uuid.New(), BedID: uuid.New(), RejectReason: &reason}

	require.NoError(t, dispatcher.ApplicationRejected(context.Background(), app, nil))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var payload payloads.ApplicationRejectedEvent
	decodeData(t, row, &payload)
	require.Equal(t, reason, payload.Reason)
	require.Equal(t, app.BedID, payload.BedID)
}

func TestCheckInAndOutEvents(t *testing.T) {
	dispatcher, conn := newTestDispatcher(t)
	ctx := context.Background()
	record := &models.OccupancyRecord{ID: uuid.New(), StudentID: uuid.New(), BedID: uuid.New(), CheckInDate: time.Now().UTC()}

	require.NoError(t, dispatcher.StudentCheckedIn(ctx, &booking.CheckInResult{Record: record}, nil))
	closedAt := time.Now().UTC()
	record.CheckOutDate = &closedAt
	require.NoError(t, dispatcher.StudentCheckedOut(ctx, &booking.CheckOutResult{Record: record}, nil))

	var types []string
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("event_type ASC").Pluck("event_type", &types).Error)
	require.Equal(t, []string{string(enums.EventStudentCheckedIn), string(enums.EventStudentCheckedOut)}, types)
}

func TestDispatcherRejectsMissingResults(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)
	ctx := context.Background()
	require.Error(t, dispatcher.ApplicationApproved(ctx, nil, nil))
	require.Error(t, dispatcher.ApplicationRejected(ctx, nil, nil))
	require.Error(t, dispatcher.StudentCheckedIn(ctx, &booking.CheckInResult{}, nil))
	require.Error(t, dispatcher.StudentCheckedOut(ctx, nil, nil))
}

type failingEmitter struct{}

func (failingEmitter) EmitIfNotExists(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestDispatcherSurfacesEmitErrors(t *testing.T) {
	_, conn := newTestDispatcher(t)
	dispatcher, err := NewDispatcher(db.NewWithConn(conn), failingEmitter{}, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)

	app := &models.RoomApplication{ID: uuid.New()}
	require.Error(t, dispatcher.ApplicationRejected(context.Background(), app, nil))
}
