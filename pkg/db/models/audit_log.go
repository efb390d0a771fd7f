package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// AuditLog is an append-only trail of booking operations.
type AuditLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Action     enums.AuditAction     `gorm:"column:action;type:text;not null"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Detail     string                `gorm:"column:detail;type:text"`
	IPAddress  *string               `gorm:"column:ip_address;type:text"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
