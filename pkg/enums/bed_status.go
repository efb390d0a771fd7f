package enums

import "fmt"

// BedStatus tracks whether a bed can be claimed.
type BedStatus string

const (
	BedStatusAvailable BedStatus = "available"
	BedStatusReserved  BedStatus = "reserved"
	BedStatusOccupied  BedStatus = "occupied"
)

var validBedStatuses = []BedStatus{
	BedStatusAvailable,
	BedStatusReserved,
	BedStatusOccupied,
}

// String implements fmt.Stringer.
func (s BedStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BedStatus.
func (s BedStatus) IsValid() bool {
	for _, candidate := range validBedStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the bed lifecycle allows moving from s to next.
// available -> reserved | occupied, reserved -> occupied | available, occupied -> available.
func (s BedStatus) CanTransitionTo(next BedStatus) bool {
	switch s {
	case BedStatusAvailable:
		return next == BedStatusReserved || next == BedStatusOccupied
	case BedStatusReserved:
		return next == BedStatusOccupied || next == BedStatusAvailable
	case BedStatusOccupied:
		return next == BedStatusAvailable
	default:
		return false
	}
}

// ParseBedStatus converts raw input into a BedStatus.
func ParseBedStatus(value string) (BedStatus, error) {
	for _, candidate := range validBedStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bed status %q", value)
}
