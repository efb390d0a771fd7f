package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// RoomApplication is a student's claim on a specific bed.
type RoomApplication struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StudentID    uuid.UUID               `gorm:"column:student_id;type:uuid;not null;index" json:"student_id"`
	BedID        uuid.UUID               `gorm:"column:bed_id;type:uuid;not null;index" json:"bed_id"`
	Status       enums.ApplicationStatus `gorm:"column:status;type:text;not null" json:"status"`
	AppliedAt    time.Time               `gorm:"column:applied_at;not null" json:"applied_at"`
	ProcessedAt  *time.Time              `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessedBy  *uuid.UUID              `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
	RejectReason *string                 `gorm:"column:reject_reason;type:text" json:"reject_reason,omitempty"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (a *RoomApplication) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = enums.ApplicationStatusPending
	}
	return nil
}
