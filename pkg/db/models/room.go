package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room groups beds inside a building. CurrentOccupancy is a denormalized count
// of the room's occupied beds and is only written by the booking engine and
// the reconciliation pass.
type Room struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BuildingID       uuid.UUID `gorm:"column:building_id;type:uuid;not null;index"`
	Label            string    `gorm:"column:label;type:text;not null"`
	RoomType         *string   `gorm:"column:room_type;type:text"`
	Capacity         int       `gorm:"column:capacity;not null;default:0"`
	CurrentOccupancy int       `gorm:"column:current_occupancy;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
