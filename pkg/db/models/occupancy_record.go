package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// OccupancyRecord is one stay of a student in a bed.
type OccupancyRecord struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StudentID    uuid.UUID             `gorm:"column:student_id;type:uuid;not null;index" json:"student_id"`
	BedID        uuid.UUID             `gorm:"column:bed_id;type:uuid;not null;index" json:"bed_id"`
	CheckInDate  time.Time             `gorm:"column:check_in_date;not null" json:"check_in_date"`
	CheckOutDate *time.Time            `gorm:"column:check_out_date" json:"check_out_date,omitempty"`
	Status       enums.OccupancyStatus `gorm:"column:status;type:text;not null" json:"status"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (o *OccupancyRecord) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OccupancyStatusActive
	}
	return nil
}
