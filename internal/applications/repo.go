package applications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/pagination"
)

// Repository persists room applications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, application *models.RoomApplication) error
	FindByID(ctx context.Context, applicationID uuid.UUID) (*models.RoomApplication, error)
	LockForUpdate(ctx context.Context, applicationID uuid.UUID) (*models.RoomApplication, error)
	HasPendingForStudent(ctx context.Context, studentID uuid.UUID) (bool, error)
	MarkApproved(ctx context.Context, applicationID uuid.UUID, approverID *uuid.UUID, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, applicationID uuid.UUID, rejectorID *uuid.UUID, reason string, at time.Time) (bool, error)
	CountPending(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, params pagination.Params) (*PendingList, error)
	FindAnomalies(ctx context.Context) ([]Anomaly, error)
}

// PendingView is a pending application joined with the student and bed
// location a manager needs to decide on it.
type PendingView struct {
	ApplicationID uuid.UUID `gorm:"column:application_id" json:"application_id"`
	StudentID     uuid.UUID `gorm:"column:student_id" json:"student_id"`
	StudentNumber string    `gorm:"column:student_number" json:"student_number"`
	StudentName   string    `gorm:"column:student_name" json:"student_name"`
	BedID         uuid.UUID `gorm:"column:bed_id" json:"bed_id"`
	BedLabel      string    `gorm:"column:bed_label" json:"bed_label"`
	RoomID        uuid.UUID `gorm:"column:room_id" json:"room_id"`
	RoomLabel     string    `gorm:"column:room_label" json:"room_label"`
	BuildingName  string    `gorm:"column:building_name" json:"building_name"`
	AppliedAt     time.Time `gorm:"column:applied_at" json:"applied_at"`
}

// PendingList is one page of the approval queue.
type PendingList struct {
	Items      []PendingView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// AnomalyKind names a pending-application shape the booking discipline should
// never produce.
type AnomalyKind string

const (
	AnomalyMultiplePendingForBed AnomalyKind = "multiple_pending_for_bed"
	AnomalyPendingOnNonReserved  AnomalyKind = "pending_on_non_reserved_bed"
)

// Anomaly is reported by reconciliation and never repaired automatically.
type Anomaly struct {
	Kind  AnomalyKind `json:"kind"`
	BedID uuid.UUID   `json:"bed_id"`
	Count int         `json:"count"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an applications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, application *models.RoomApplication) error {
	if application.AppliedAt.IsZero() {
		application.AppliedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(application).Error
}

func (r *repository) FindByID(ctx context.Context, applicationID uuid.UUID) (*models.RoomApplication, error) {
	var application models.RoomApplication
	if err := r.db.WithContext(ctx).Where("id = ?", applicationID).First(&application).Error; err != nil {
		return nil, err
	}
	return &application, nil
}

func (r *repository) LockForUpdate(ctx context.Context, applicationID uuid.UUID) (*models.RoomApplication, error) {
	var application models.RoomApplication
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: clause.CurrentTable}}).
		Where("id = ?", applicationID).
		First(&application).Error
	if err != nil {
		return nil, err
	}
	return &application, nil
}

func (r *repository) HasPendingForStudent(ctx context.Context, studentID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RoomApplication{}).
		Where("student_id = ? AND status = ?", studentID, enums.ApplicationStatusPending).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkApproved moves a pending application to approved. It reports false when
// the application was no longer pending.
func (r *repository) MarkApproved(ctx context.Context, applicationID uuid.UUID, approverID *uuid.UUID, at time.Time) (bool, error) {
	return r.decide(ctx, applicationID, map[string]any{
		"status":       enums.ApplicationStatusApproved,
		"processed_at": at,
		"processed_by": approverID,
	})
}

func (r *repository) MarkRejected(ctx context.Context, applicationID uuid.UUID, rejectorID *uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.decide(ctx, applicationID, map[string]any{
		"status":        enums.ApplicationStatusRejected,
		"processed_at":  at,
		"processed_by":  rejectorID,
		"reject_reason": reason,
	})
}

func (r *repository) decide(ctx context.Context, applicationID uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RoomApplication{}).
		Where("id = ? AND status = ?", applicationID, enums.ApplicationStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomApplication{}).
		Where("status = ?", enums.ApplicationStatusPending).
		Count(&count).Error
	return count, err
}

// ListPending returns the approval queue oldest first.
func (r *repository) ListPending(ctx context.Context, params pagination.Params) (*PendingList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Table("room_applications").
		Select(`room_applications.id AS application_id,
			room_applications.student_id AS student_id,
			students.student_number AS student_number,
			students.name AS student_name,
			room_applications.bed_id AS bed_id,
			beds.label AS bed_label,
			rooms.id AS room_id,
			rooms.label AS room_label,
			buildings.name AS building_name,
			room_applications.applied_at AS applied_at`).
		Joins("JOIN students ON students.id = room_applications.student_id").
		Joins("JOIN beds ON beds.id = room_applications.bed_id").
		Joins("JOIN rooms ON rooms.id = beds.room_id").
		Joins("JOIN buildings ON buildings.id = rooms.building_id").
		Where("room_applications.status = ?", enums.ApplicationStatusPending)

	if cursor != nil {
		query = query.Where(
			"(room_applications.applied_at > ?) OR (room_applications.applied_at = ? AND room_applications.id > ?)",
			cursor.At, cursor.At, cursor.ID,
		)
	}

	var rows []PendingView
	if err := query.
		Order("room_applications.applied_at ASC").
		Order("room_applications.id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	page, more := pagination.Trim(rows, params.Limit)
	list := &PendingList{Items: page}
	if list.Items == nil {
		list.Items = []PendingView{}
	}
	if more {
		last := page[len(page)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.AppliedAt, ID: last.ApplicationID})
	}
	return list, nil
}

func (r *repository) FindAnomalies(ctx context.Context) ([]Anomaly, error) {
	type bedCount struct {
		BedID uuid.UUID `gorm:"column:bed_id"`
		Count int       `gorm:"column:pending_count"`
	}

	var multiple []bedCount
	if err := r.db.WithContext(ctx).
		Model(&models.RoomApplication{}).
		Select("bed_id, COUNT(*) AS pending_count").
		Where("status = ?", enums.ApplicationStatusPending).
		Group("bed_id").
		Having("COUNT(*) > 1").
		Scan(&multiple).Error; err != nil {
		return nil, err
	}

	var stray []bedCount
	if err := r.db.WithContext(ctx).
		Table("room_applications").
		Select("room_applications.bed_id AS bed_id, COUNT(*) AS pending_count").
		Joins("JOIN beds ON beds.id = room_applications.bed_id").
		Where("room_applications.status = ? AND beds.status <> ?", enums.ApplicationStatusPending, enums.BedStatusReserved).
		Group("room_applications.bed_id").
		Scan(&stray).Error; err != nil {
		return nil, err
	}

	anomalies := make([]Anomaly, 0, len(multiple)+len(stray))
	for _, row := range multiple {
		anomalies = append(anomalies, Anomaly{Kind: AnomalyMultiplePendingForBed, BedID: row.BedID, Count: row.Count})
	}
	for _, row := range stray {
		anomalies = append(anomalies, Anomaly{Kind: AnomalyPendingOnNonReserved, BedID: row.BedID, Count: row.Count})
	}
	return anomalies, nil
}
