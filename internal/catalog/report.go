package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
)

// OccupancyReport is the read model served for a single room.
type OccupancyReport struct {
	RoomID           uuid.UUID       `json:"room_id"`
	BuildingID       uuid.UUID       `json:"building_id"`
	Label            string          `json:"label"`
	Capacity         int             `json:"capacity"`
	CurrentOccupancy int             `json:"current_occupancy"`
	OccupiedBeds     int             `json:"occupied_beds"`
	ReservedBeds     int             `json:"reserved_beds"`
	AvailableBeds    int             `json:"available_beds"`
	Utilization      decimal.Decimal `json:"utilization"`
	Drifted          bool            `json:"drifted"`
}

// BuildReport converts a raw occupancy row into the served report.
// Utilization is occupied beds over capacity, rounded to four places.
func BuildReport(row RoomOccupancy) OccupancyReport {
	utilization := decimal.Zero
	if row.Capacity > 0 {
		utilization = decimal.NewFromInt(int64(row.OccupiedBeds)).
			DivRound(decimal.NewFromInt(int64(row.Capacity)), 4)
	}
	return OccupancyReport{
		RoomID:           row.RoomID,
		BuildingID:       row.BuildingID,
		Label:            row.Label,
		Capacity:         row.Capacity,
		CurrentOccupancy: row.StoredCount,
		OccupiedBeds:     row.OccupiedBeds,
		ReservedBeds:     row.ReservedBeds,
		AvailableBeds:    row.AvailableBeds,
		Utilization:      utilization,
		Drifted:          row.Drifted(),
	}
}

// Service exposes catalog reads to the HTTP layer.
type Service interface {
	RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*OccupancyReport, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*OccupancyReport, error) {
	row, err := s.repo.RoomOccupancy(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	}
	if err != nil {
		return nil, err
	}
	report := BuildReport(*row)
	return &report, nil
}
