package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox/payloads"
)

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// EventDescriptor says where an event type is published and which payload
// struct each envelope version decodes into.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	schemas       map[int]func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	events map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every booking notification to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	reg := &EventRegistry{events: make(map[enums.OutboxEventType]EventDescriptor)}

	reg.add(enums.EventApplicationApproved, enums.AggregateRoomApplication, cfg.NotificationTopic,
		func() any { return &payloads.ApplicationApprovedEvent{} })
	reg.add(enums.EventApplicationRejected, enums.AggregateRoomApplication, cfg.NotificationTopic,
		func() any { return &payloads.ApplicationRejectedEvent{} })
	reg.add(enums.EventStudentCheckedIn, enums.AggregateOccupancy, cfg.NotificationTopic,
		func() any { return &payloads.StudentCheckedInEvent{} })
	reg.add(enums.EventStudentCheckedOut, enums.AggregateOccupancy, cfg.NotificationTopic,
		func() any { return &payloads.StudentCheckedOutEvent{} })

	return reg, nil
}

// add registers the payload for outbox.CurrentEnvelopeVersion. Older versions
// would be added to the same descriptor's schemas.
func (r *EventRegistry) add(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, schema func() any) {
	r.events[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		schemas:       map[int]func() any{outbox.CurrentEnvelopeVersion: schema},
	}
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	if r == nil {
		return EventDescriptor{}, false
	}
	desc, ok := r.events[eventType]
	return desc, ok
}

// Resolve decodes an outbox row. Every failure is a NonRetryableError since
// a malformed row does not heal on its own.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.Descriptor(event.EventType)
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("event type %s not registered", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	schema, ok := desc.schemas[env.Version]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%s has no schema for version %d", event.EventType, env.Version))
	}
	payload := schema()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
