package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column in outbox_events.
type OutboxAggregateType string

const (
	AggregateRoomApplication OutboxAggregateType = "room_application"
	AggregateOccupancy       OutboxAggregateType = "occupancy_record"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRoomApplication,
	AggregateOccupancy,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column in outbox_events.
type OutboxEventType string

const (
	EventApplicationApproved OutboxEventType = "application_approved"
	EventApplicationRejected OutboxEventType = "application_rejected"
	EventStudentCheckedIn    OutboxEventType = "student_checked_in"
	EventStudentCheckedOut   OutboxEventType = "student_checked_out"
)

var validEventTypes = []OutboxEventType{
	EventApplicationApproved,
	EventApplicationRejected,
	EventStudentCheckedIn,
	EventStudentCheckedOut,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
