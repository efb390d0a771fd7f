package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Building is the top of the housing hierarchy.
type Building struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;type:text;not null"`
	Location     *string   `gorm:"column:location;type:text"`
	ManagerName  *string   `gorm:"column:manager_name;type:text"`
	ManagerPhone *string   `gorm:"column:manager_phone;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Building) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
