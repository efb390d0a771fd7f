package booking

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
)

// DefaultRejectReason is stored when a manager rejects without a reason.
const DefaultRejectReason = "application rejected by manager"

// ReasonBedUnavailable is stored when an approval loses the bed to a direct check-in.
const ReasonBedUnavailable = "bed no longer available"

type ReserveInput struct {
	StudentID uuid.UUID
	BedID     uuid.UUID
}

type ApproveInput struct {
	ApplicationID uuid.UUID
	ApproverID    *uuid.UUID
}

type RejectInput struct {
	ApplicationID uuid.UUID
	Reason        string
	RejectorID    *uuid.UUID
}

type DirectCheckInInput struct {
	StudentID uuid.UUID
	BedID     uuid.UUID
	ActorID   *uuid.UUID
}

type CheckOutInput struct {
	StudentID uuid.UUID
	ActorID   *uuid.UUID
}

// Placement names where a student now lives.
type Placement struct {
	BuildingID   uuid.UUID `json:"building_id"`
	BuildingName string    `json:"building_name"`
	RoomID       uuid.UUID `json:"room_id"`
	RoomLabel    string    `json:"room_label"`
	BedID        uuid.UUID `json:"bed_id"`
	BedLabel     string    `json:"bed_label"`
}

// Describe renders the placement the way notifications show it.
func (p Placement) Describe() string {
	return fmt.Sprintf("%s room %s bed %s", p.BuildingName, p.RoomLabel, p.BedLabel)
}

func placementFrom(loc *catalog.BedLocation) Placement {
	return Placement{
		BuildingID:   loc.BuildingID,
		BuildingName: loc.BuildingName,
		RoomID:       loc.RoomID,
		RoomLabel:    loc.RoomLabel,
		BedID:        loc.BedID,
		BedLabel:     loc.BedLabel,
	}
}

type ApprovalResult struct {
	Application *models.RoomApplication `json:"application"`
	Record      *models.OccupancyRecord `json:"occupancy"`
	Placement   Placement               `json:"placement"`
	Message     string                  `json:"message"`
}

type CheckInResult struct {
	Record    *models.OccupancyRecord `json:"occupancy"`
	Placement Placement               `json:"placement"`
	Message   string                  `json:"message"`
}

type CheckOutResult struct {
	Record    *models.OccupancyRecord `json:"occupancy"`
	Placement Placement               `json:"placement"`
}

// RoomCorrection is one counter overwritten by reconciliation.
type RoomCorrection struct {
	RoomID   uuid.UUID `json:"room_id"`
	Previous int       `json:"previous"`
	Actual   int       `json:"actual"`
}

// OverCapacity flags a room holding more occupied beds than its capacity.
type OverCapacity struct {
	RoomID   uuid.UUID `json:"room_id"`
	Capacity int       `json:"capacity"`
	Occupied int       `json:"occupied"`
}

type ReconcileReport struct {
	RoomsChecked int                    `json:"rooms_checked"`
	Corrections  []RoomCorrection       `json:"corrections"`
	Anomalies    []applications.Anomaly `json:"anomalies"`
	OverCapacity []OverCapacity         `json:"over_capacity"`
}
