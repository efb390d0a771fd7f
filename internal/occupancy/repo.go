package occupancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// Repository persists stays. A student and a bed each have at most one
// active record.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Open(ctx context.Context, studentID, bedID uuid.UUID, at time.Time) (*models.OccupancyRecord, error)
	FindActiveByStudent(ctx context.Context, studentID uuid.UUID) (*models.OccupancyRecord, error)
	Close(ctx context.Context, recordID uuid.UUID, at time.Time) (bool, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.OccupancyRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an occupancy repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Open(ctx context.Context, studentID, bedID uuid.UUID, at time.Time) (*models.OccupancyRecord, error) {
	record := &models.OccupancyRecord{
		StudentID:   studentID,
		BedID:       bedID,
		CheckInDate: at,
		Status:      enums.OccupancyStatusActive,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// FindActiveByStudent returns nil without error when the student has no
// active stay.
func (r *repository) FindActiveByStudent(ctx context.Context, studentID uuid.UUID) (*models.OccupancyRecord, error) {
	return r.findActive(ctx, "student_id = ?", studentID)
}

func (r *repository) findActive(ctx context.Context, cond string, arg uuid.UUID) (*models.OccupancyRecord, error) {
	var record models.OccupancyRecord
	err := r.db.WithContext(ctx).
		Where(cond, arg).
		Where("status = ?", enums.OccupancyStatusActive).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Close ends an active stay. It reports false when the record was already closed.
func (r *repository) Close(ctx context.Context, recordID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OccupancyRecord{}).
		Where("id = ? AND status = ?", recordID, enums.OccupancyStatusActive).
		Updates(map[string]any{
			"status":         enums.OccupancyStatusClosed,
			"check_out_date": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.OccupancyRecord, error) {
	var records []models.OccupancyRecord
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("check_in_date ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
