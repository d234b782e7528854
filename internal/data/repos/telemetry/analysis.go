package telemetry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type AnalysisFilter struct {
	DeviceIDs []uuid.UUID
	PetIDs    []uuid.UUID
	Limit     int
	Offset    int
}

type AnalysisRepo interface {
	// Create inserts a new analysis row. The partial unique index on
	// session_id makes the second concurrent insert for a session fail
	// with a unique violation; callers treat that as "already analyzed".
	Create(ctx context.Context, tx *gorm.DB, record *telemetry.SensorAnalysis) (*telemetry.SensorAnalysis, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.SensorAnalysis, error)
	// GetBySessionID returns nil, nil when the session has no analysis yet.
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error)
	List(ctx context.Context, tx *gorm.DB, filter AnalysisFilter) ([]*telemetry.SensorAnalysis, error)
	// Latest returns the most recent analysis matching the filter, or nil
	// when none exists.
	Latest(ctx context.Context, tx *gorm.DB, filter AnalysisFilter) (*telemetry.SensorAnalysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

// conn picks the caller's transaction when one is open.
func (ar *analysisRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}

func (ar *analysisRepo) Create(ctx context.Context, tx *gorm.DB, record *telemetry.SensorAnalysis) (*telemetry.SensorAnalysis, error) {
	if err := ar.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (ar *analysisRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.SensorAnalysis, error) {
	var result telemetry.SensorAnalysis
	if err := ar.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (ar *analysisRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error) {
	var result telemetry.SensorAnalysis
	err := ar.conn(tx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (ar *analysisRepo) List(ctx context.Context, tx *gorm.DB, filter AnalysisFilter) ([]*telemetry.SensorAnalysis, error) {
	results := []*telemetry.SensorAnalysis{}
	if len(filter.DeviceIDs) == 0 && len(filter.PetIDs) == 0 {
		return results, nil
	}

	q := ar.applyFilter(ar.conn(tx).WithContext(ctx).Model(&telemetry.SensorAnalysis{}), filter)
	q = q.Order("analyzed_at DESC")
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

func (ar *analysisRepo) Latest(ctx context.Context, tx *gorm.DB, filter AnalysisFilter) (*telemetry.SensorAnalysis, error) {
	if len(filter.DeviceIDs) == 0 && len(filter.PetIDs) == 0 {
		return nil, nil
	}

	var result telemetry.SensorAnalysis
	q := ar.applyFilter(ar.conn(tx).WithContext(ctx).Model(&telemetry.SensorAnalysis{}), filter)
	err := q.Order("analyzed_at DESC").First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (ar *analysisRepo) applyFilter(q *gorm.DB, filter AnalysisFilter) *gorm.DB {
	if len(filter.DeviceIDs) > 0 && len(filter.PetIDs) > 0 {
		q = q.Where("device_id IN ? OR pet_id IN ?", filter.DeviceIDs, filter.PetIDs)
	} else if len(filter.DeviceIDs) > 0 {
		q = q.Where("device_id IN ?", filter.DeviceIDs)
	} else if len(filter.PetIDs) > 0 {
		q = q.Where("pet_id IN ?", filter.PetIDs)
	}
	return q
}
