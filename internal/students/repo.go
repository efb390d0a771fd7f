package students

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
)

// Location is the denormalized dorm placement stored on the student row.
type Location struct {
	Building string
	Room     string
	Bed      string
}

// Repository persists students and their current placement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, studentID uuid.UUID) (*models.Student, error)
	SetLocation(ctx context.Context, studentID uuid.UUID, loc Location) error
	ClearLocation(ctx context.Context, studentID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a students repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *repository) FindByID(ctx context.Context, studentID uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("id = ?", studentID).First(&student).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *repository) SetLocation(ctx context.Context, studentID uuid.UUID, loc Location) error {
	return r.updateLocation(ctx, studentID, map[string]any{
		"dorm_building": loc.Building,
		"room_number":   loc.Room,
		"bed_number":    loc.Bed,
	})
}

func (r *repository) ClearLocation(ctx context.Context, studentID uuid.UUID) error {
	return r.updateLocation(ctx, studentID, map[string]any{
		"dorm_building": nil,
		"room_number":   nil,
		"bed_number":    nil,
	})
}

func (r *repository) updateLocation(ctx context.Context, studentID uuid.UUID, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("id = ?", studentID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
