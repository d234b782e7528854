package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type AlertFilter struct {
	DeviceIDs      []uuid.UUID
	PetID          *uuid.UUID
	SessionID      *uuid.UUID
	Type           telemetry.AlertType
	UnreadOnly     bool
	UnresolvedOnly bool
	Limit          int
	Offset         int
}

type AlertRepo interface {
	CreateMany(ctx context.Context, tx *gorm.DB, alerts []*telemetry.HealthAlert) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.HealthAlert, error)
	List(ctx context.Context, tx *gorm.DB, filter AlertFilter) ([]*telemetry.HealthAlert, error)
	MarkRead(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, resolvedBy uuid.UUID, resolvedAt time.Time) error
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{db: db, log: baseLog.With("repo", "AlertRepo")}
}

// conn picks the caller's transaction when one is open.
func (ar *alertRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}

func (ar *alertRepo) CreateMany(ctx context.Context, tx *gorm.DB, alerts []*telemetry.HealthAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return ar.conn(tx).WithContext(ctx).Create(alerts).Error
}

func (ar *alertRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.HealthAlert, error) {
	var result telemetry.HealthAlert
	if err := ar.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (ar *alertRepo) List(ctx context.Context, tx *gorm.DB, filter AlertFilter) ([]*telemetry.HealthAlert, error) {
	results := []*telemetry.HealthAlert{}
	q := ar.conn(tx).WithContext(ctx).Model(&telemetry.HealthAlert{})
	if len(filter.DeviceIDs) > 0 {
		q = q.Where("device_id IN ?", filter.DeviceIDs)
	}
	if filter.PetID != nil {
		q = q.Where("pet_id = ?", *filter.PetID)
	}
	if filter.SessionID != nil {
		q = q.Where("session_id = ?", *filter.SessionID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.UnreadOnly {
		q = q.Where("is_read = FALSE")
	}
	if filter.UnresolvedOnly {
		q = q.Where("is_resolved = FALSE")
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ar *alertRepo) MarkRead(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return ar.conn(tx).WithContext(ctx).
		Model(&telemetry.HealthAlert{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (ar *alertRepo) Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, resolvedBy uuid.UUID, resolvedAt time.Time) error {
	return ar.conn(tx).WithContext(ctx).
		Model(&telemetry.HealthAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_resolved": true,
			"is_read":     true,
			"resolved_by": resolvedBy,
			"resolved_at": resolvedAt,
		}).Error
}
