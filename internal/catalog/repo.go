package catalog

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// Repository reads the building/room/bed hierarchy and owns the room
// occupancy counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBuilding(ctx context.Context, buildingID uuid.UUID) (*models.Building, error)
	FindRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	IncrementOccupancy(ctx context.Context, roomID uuid.UUID) error
	DecrementOccupancy(ctx context.Context, roomID uuid.UUID) error
	SetOccupancy(ctx context.Context, roomID uuid.UUID, occupancy int) error
	OccupancySnapshot(ctx context.Context) ([]RoomOccupancy, error)
	RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*RoomOccupancy, error)
	BedLocation(ctx context.Context, bedID uuid.UUID) (*BedLocation, error)
	CreateBuilding(ctx context.Context, building *models.Building) error
	CreateRoomWithBeds(ctx context.Context, room *models.Room) ([]models.Bed, error)
}

// RoomOccupancy compares the stored counter with the count of occupied beds.
type RoomOccupancy struct {
	RoomID        uuid.UUID `gorm:"column:room_id"`
	BuildingID    uuid.UUID `gorm:"column:building_id"`
	Label         string    `gorm:"column:label"`
	Capacity      int       `gorm:"column:capacity"`
	StoredCount   int       `gorm:"column:stored_count"`
	OccupiedBeds  int       `gorm:"column:occupied_beds"`
	ReservedBeds  int       `gorm:"column:reserved_beds"`
	AvailableBeds int       `gorm:"column:available_beds"`
}

// Drifted reports whether the denormalized counter disagrees with bed rows.
func (o RoomOccupancy) Drifted() bool {
	return o.StoredCount != o.OccupiedBeds
}

// BedLocation carries the human-facing labels for a bed.
type BedLocation struct {
	BuildingID   uuid.UUID `gorm:"column:building_id"`
	BuildingName string    `gorm:"column:building_name"`
	RoomID       uuid.UUID `gorm:"column:room_id"`
	RoomLabel    string    `gorm:"column:room_label"`
	BedID        uuid.UUID `gorm:"column:bed_id"`
	BedLabel     string    `gorm:"column:bed_label"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBuilding(ctx context.Context, buildingID uuid.UUID) (*models.Building, error) {
	var building models.Building
	if err := r.db.WithContext(ctx).Where("id = ?", buildingID).First(&building).Error; err != nil {
		return nil, err
	}
	return &building, nil
}

func (r *repository) FindRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *repository) IncrementOccupancy(ctx context.Context, roomID uuid.UUID) error {
	return r.updateCounter(ctx, roomID, gorm.Expr("current_occupancy + 1"))
}

// DecrementOccupancy never drives the counter below zero.
func (r *repository) DecrementOccupancy(ctx context.Context, roomID uuid.UUID) error {
	return r.updateCounter(ctx, roomID, gorm.Expr("CASE WHEN current_occupancy > 0 THEN current_occupancy - 1 ELSE 0 END"))
}

func (r *repository) SetOccupancy(ctx context.Context, roomID uuid.UUID, occupancy int) error {
	if occupancy < 0 {
		occupancy = 0
	}
	return r.updateCounter(ctx, roomID, occupancy)
}

func (r *repository) updateCounter(ctx context.Context, roomID uuid.UUID, value any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("current_occupancy", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) occupancyQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("rooms").
		Select(`rooms.id AS room_id,
			rooms.building_id AS building_id,
			rooms.label AS label,
			rooms.capacity AS capacity,
			rooms.current_occupancy AS stored_count,
			COALESCE(SUM(CASE WHEN beds.status = ? THEN 1 ELSE 0 END), 0) AS occupied_beds,
			COALESCE(SUM(CASE WHEN beds.status = ? THEN 1 ELSE 0 END), 0) AS reserved_beds,
			COALESCE(SUM(CASE WHEN beds.status = ? THEN 1 ELSE 0 END), 0) AS available_beds`,
			enums.BedStatusOccupied, enums.BedStatusReserved, enums.BedStatusAvailable).
		Joins("LEFT JOIN beds ON beds.room_id = rooms.id").
		Group("rooms.id, rooms.building_id, rooms.label, rooms.capacity, rooms.current_occupancy")
}

func (r *repository) OccupancySnapshot(ctx context.Context) ([]RoomOccupancy, error) {
	var rows []RoomOccupancy
	if err := r.occupancyQuery(ctx).Order("rooms.id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*RoomOccupancy, error) {
	var rows []RoomOccupancy
	if err := r.occupancyQuery(ctx).Where("rooms.id = ?", roomID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repository) BedLocation(ctx context.Context, bedID uuid.UUID) (*BedLocation, error) {
	var rows []BedLocation
	err := r.db.WithContext(ctx).
		Table("beds").
		Select(`buildings.id AS building_id,
			buildings.name AS building_name,
			rooms.id AS room_id,
			rooms.label AS room_label,
			beds.id AS bed_id,
			beds.label AS bed_label`).
		Joins("JOIN rooms ON rooms.id = beds.room_id").
		Joins("JOIN buildings ON buildings.id = rooms.building_id").
		Where("beds.id = ?", bedID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repository) CreateBuilding(ctx context.Context, building *models.Building) error {
	return r.db.WithContext(ctx).Create(building).Error
}

// CreateRoomWithBeds inserts a room and one available bed per unit of
// capacity, labeled 1..capacity.
func (r *repository) CreateRoomWithBeds(ctx context.Context, room *models.Room) ([]models.Bed, error) {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return nil, err
	}
	if room.Capacity == 0 {
		return nil, nil
	}
	beds := make([]models.Bed, 0, room.Capacity)
	for i := 1; i <= room.Capacity; i++ {
		beds = append(beds, models.Bed{
			RoomID: room.ID,
			Label:  strconv.Itoa(i),
			Status: enums.BedStatusAvailable,
		})
	}
	if err := r.db.WithContext(ctx).Create(&beds).Error; err != nil {
		return nil, err
	}
	return beds, nil
}
