package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type SessionFilter struct {
	DeviceIDs []uuid.UUID
	SessionID string
	Limit     int
	Offset    int
}

type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *telemetry.SensorDataSession) (*telemetry.SensorDataSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.SensorDataSession, error)
	// GetBySessionID looks up by the device-supplied external session id.
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) (*telemetry.SensorDataSession, error)
	List(ctx context.Context, tx *gorm.DB, filter SessionFilter) ([]*telemetry.SensorDataSession, error)
	// ListMissingAnalysis returns sessions with no live analysis row,
	// oldest first.
	ListMissingAnalysis(ctx context.Context, tx *gorm.DB, limit int) ([]*telemetry.SensorDataSession, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

// conn picks the caller's transaction when one is open.
func (sr *sessionRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return sr.db
}

func (sr *sessionRepo) Create(ctx context.Context, tx *gorm.DB, session *telemetry.SensorDataSession) (*telemetry.SensorDataSession, error) {
	if err := sr.conn(tx).WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (sr *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*telemetry.SensorDataSession, error) {
	var result telemetry.SensorDataSession
	if err := sr.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (sr *sessionRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) (*telemetry.SensorDataSession, error) {
	var result telemetry.SensorDataSession
	if err := sr.conn(tx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (sr *sessionRepo) ListMissingAnalysis(ctx context.Context, tx *gorm.DB, limit int) ([]*telemetry.SensorDataSession, error) {
	results := []*telemetry.SensorDataSession{}
	q := sr.conn(tx).WithContext(ctx).
		Model(&telemetry.SensorDataSession{}).
		Where("NOT EXISTS (SELECT 1 FROM sensor_analysis sa WHERE sa.session_id = sensor_data_session.id AND sa.deleted_at IS NULL)").
		Order("recorded_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *sessionRepo) List(ctx context.Context, tx *gorm.DB, filter SessionFilter) ([]*telemetry.SensorDataSession, error) {
	results := []*telemetry.SensorDataSession{}
	if len(filter.DeviceIDs) == 0 && filter.SessionID == "" {
		return results, nil
	}

	q := sr.conn(tx).WithContext(ctx).Model(&telemetry.SensorDataSession{})
	if len(filter.DeviceIDs) > 0 {
		q = q.Where("device_id IN ?", filter.DeviceIDs)
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	q = q.Order("recorded_at DESC")
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
