package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Student is a housing requester. DormBuilding, RoomNumber and BedNumber
// mirror the active occupancy and are cleared on check-out.
type Student struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StudentNumber  string    `gorm:"column:student_number;type:text;not null;uniqueIndex"`
	Name           string    `gorm:"column:name;type:text;not null"`
	Gender         *string   `gorm:"column:gender;type:text"`
	Major          *string   `gorm:"column:major;type:text"`
	ClassName      *string   `gorm:"column:class_name;type:text"`
	EnrollmentYear *int      `gorm:"column:enrollment_year"`
	Phone          *string   `gorm:"column:phone;type:text"`
	DormBuilding   *string   `gorm:"column:dorm_building;type:text"`
	RoomNumber     *string   `gorm:"column:room_number;type:text"`
	BedNumber      *string   `gorm:"column:bed_number;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
