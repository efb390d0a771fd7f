package payloads

import (
	"time"

	"github.com/google/uuid"
)

// Placement is the human-facing location sent with notifications.
type Placement struct {
	BuildingName string    `json:"building_name"`
	RoomID       uuid.UUID `json:"room_id"`
	RoomLabel    string    `json:"room_label"`
	BedID        uuid.UUID `json:"bed_id"`
	BedLabel     string    `json:"bed_label"`
	Description  string    `json:"description"`
}

// ApplicationApprovedEvent tells the student where they will live.
type ApplicationApprovedEvent struct {
	ApplicationID uuid.UUID  `json:"application_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	ApprovedBy    *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt    time.Time  `json:"approved_at"`
	Placement     Placement  `json:"placement"`
}

// ApplicationRejectedEvent carries the stored rejection reason.
type ApplicationRejectedEvent struct {
	ApplicationID uuid.UUID  `json:"application_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	BedID         uuid.UUID  `json:"bed_id"`
	RejectedBy    *uuid.UUID `json:"rejected_by,omitempty"`
	Reason        string     `json:"reason"`
	RejectedAt    time.Time  `json:"rejected_at"`
}

// StudentCheckedInEvent is emitted for direct check-ins.
type StudentCheckedInEvent struct {
	OccupancyID uuid.UUID `json:"occupancy_id"`
	StudentID   uuid.UUID `json:"student_id"`
	CheckInDate time.Time `json:"check_in_date"`
	Placement   Placement `json:"placement"`
}

// StudentCheckedOutEvent closes a stay.
type StudentCheckedOutEvent struct {
	OccupancyID  uuid.UUID `json:"occupancy_id"`
	StudentID    uuid.UUID `json:"student_id"`
	CheckInDate  time.Time `json:"check_in_date"`
	CheckOutDate time.Time `json:"check_out_date"`
	Placement    Placement `json:"placement"`
}
