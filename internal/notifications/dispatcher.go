package notifications

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Dispatcher queues notification events for committed booking outcomes. Each
// event is written in its own transaction; delivery is left to the outbox
// publisher.
type Dispatcher struct {
	tx      txRunner
	emitter emitter
	logg    *logger.Logger
}

func NewDispatcher(tx txRunner, emitter emitter, logg *logger.Logger) (*Dispatcher, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Dispatcher{tx: tx, emitter: emitter, logg: logg}, nil
}

func (d *Dispatcher) ApplicationApproved(ctx context.Context, result *booking.ApprovalResult, actor *outbox.ActorRef) error {
	if result == nil || result.Application == nil {
		return errors.New("approval result required")
	}
	app := result.Application
	approvedAt := time.Now().UTC()
	if app.ProcessedAt != nil {
		approvedAt = *app.ProcessedAt
	}
	return d.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventApplicationApproved,
		AggregateType: enums.AggregateRoomApplication,
		AggregateID:   app.ID,
		Actor:         actor,
		Data: payloads.ApplicationApprovedEvent{
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			ApprovedBy:    app.ProcessedBy,
			ApprovedAt:    approvedAt,
			Placement:     placementPayload(result.Placement),
		},
	})
}

func (d *Dispatcher) ApplicationRejected(ctx context.Context, app *models.RoomApplication, actor *outbox.ActorRef) error {
	if app == nil {
		return errors.New("application required")
	}
	reason := booking.DefaultRejectReason
	if app.RejectReason != nil {
		reason = *app.RejectReason
	}
	rejectedAt := time.Now().UTC()
	if app.ProcessedAt != nil {
		rejectedAt = *app.ProcessedAt
	}
	return d.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventApplicationRejected,
		AggregateType: enums.AggregateRoomApplication,
		AggregateID:   app.ID,
		Actor:         actor,
		Data: payloads.ApplicationRejectedEvent{
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			BedID:         app.BedID,
			RejectedBy:    app.ProcessedBy,
			Reason:        reason,
			RejectedAt:    rejectedAt,
		},
	})
}

func (d *Dispatcher) StudentCheckedIn(ctx context.Context, result *booking.CheckInResult, actor *outbox.ActorRef) error {
	if result == nil || result.Record == nil {
		return errors.New("check-in result required")
	}
	return d.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventStudentCheckedIn,
		AggregateType: enums.AggregateOccupancy,
		AggregateID:   result.Record.ID,
		Actor:         actor,
		Data: payloads.StudentCheckedInEvent{
			OccupancyID: result.Record.ID,
			StudentID:   result.Record.StudentID,
			CheckInDate: result.Record.CheckInDate,
			Placement:   placementPayload(result.Placement),
		},
	})
}

func (d *Dispatcher) StudentCheckedOut(ctx context.Context, result *booking.CheckOutResult, actor *outbox.ActorRef) error {
	if result == nil || result.Record == nil {
		return errors.New("check-out result required")
	}
	checkOut := time.Now().UTC()
	if result.Record.CheckOutDate != nil {
		checkOut = *result.Record.CheckOutDate
	}
	return d.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventStudentCheckedOut,
		AggregateType: enums.AggregateOccupancy,
		AggregateID:   result.Record.ID,
		Actor:         actor,
		Data: payloads.StudentCheckedOutEvent{
			OccupancyID:  result.Record.ID,
			StudentID:    result.Record.StudentID,
			CheckInDate:  result.Record.CheckInDate,
			CheckOutDate: checkOut,
			Placement:    placementPayload(result.Placement),
		},
	})
}

func (d *Dispatcher) emit(ctx context.Context, event outbox.DomainEvent) error {
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return d.emitter.EmitIfNotExists(ctx, tx, event)
	})
	if err != nil && d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		})
		d.logg.Error(logCtx, "failed to queue notification", err)
	}
	return err
}

func placementPayload(p booking.Placement) payloads.Placement {
	return payloads.Placement{
		BuildingName: p.BuildingName,
		RoomID:       p.RoomID,
		RoomLabel:    p.RoomLabel,
		BedID:        p.BedID,
		BedLabel:     p.BedLabel,
		Description:  p.Describe(),
	}
}
