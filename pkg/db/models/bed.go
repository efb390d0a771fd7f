package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// Bed is the allocatable unit. Version increases on every status change.
type Bed struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RoomID    uuid.UUID       `gorm:"column:room_id;type:uuid;not null;index"`
	Label     string          `gorm:"column:label;type:text;not null"`
	Status    enums.BedStatus `gorm:"column:status;type:text;not null"`
	Version   int64           `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Bed) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = enums.BedStatusAvailable
	}
	return nil
}
