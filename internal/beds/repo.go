package beds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// ErrVersionConflict is returned when a guarded update finds the bed row
// changed since it was read.
var ErrVersionConflict = errors.New("bed version conflict")

// Repository is the bed state store. TryTransition is a non-blocking
// compare-and-swap on status; LockForUpdate takes the row lock for the
// lifetime of the enclosing transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, bedID uuid.UUID) (*models.Bed, error)
	TryTransition(ctx context.Context, bedID uuid.UUID, from, to enums.BedStatus) (bool, error)
	LockForUpdate(ctx context.Context, bedID uuid.UUID) (*models.Bed, error)
	UpdateStatus(ctx context.Context, bed *models.Bed, to enums.BedStatus) error
	LockByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Bed, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bed repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, bedID uuid.UUID) (*models.Bed, error) {
	var bed models.Bed
	if err := r.db.WithContext(ctx).Where("id = ?", bedID).First(&bed).Error; err != nil {
		return nil, err
	}
	return &bed, nil
}

func (r *repository) TryTransition(ctx context.Context, bedID uuid.UUID, from, to enums.BedStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Bed{}).
		Where("id = ? AND status = ?", bedID, from).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) LockForUpdate(ctx context.Context, bedID uuid.UUID) (*models.Bed, error) {
	var bed models.Bed
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: clause.CurrentTable}}).
		Where("id = ?", bedID).
		First(&bed).Error
	if err != nil {
		return nil, err
	}
	return &bed, nil
}

// UpdateStatus moves a bed previously read under lock to the next status.
// The version guard catches writers that bypassed the lock.
func (r *repository) UpdateStatus(ctx context.Context, bed *models.Bed, to enums.BedStatus) error {
	if bed == nil {
		return errors.New("bed required")
	}
	result := r.db.WithContext(ctx).
		Model(&models.Bed{}).
		Where("id = ? AND version = ?", bed.ID, bed.Version).
		Updates(map[string]any{
			"status":  to,
			"version": bed.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	bed.Status = to
	bed.Version++
	return nil
}

// LockByRoom locks every bed of a room. Holding all of them freezes the room's
// occupancy against concurrent bookings.
func (r *repository) LockByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Bed, error) {
	var beds []models.Bed
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: clause.CurrentTable}}).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&beds).Error; err != nil {
		return nil, err
	}
	return beds, nil
}
