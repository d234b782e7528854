package telemetry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// RecordRepo persists the per-session child records. Writes happen inside
// the ingestion transaction; loaders are used by the analysis trigger and
// the query surface after commit.
type RecordRepo interface {
	CreateVitalSamples(ctx context.Context, tx *gorm.DB, samples []*telemetry.VitalSignsSample) error
	CreateMotionSamples(ctx context.Context, tx *gorm.DB, samples []*telemetry.MotionSample) error
	CreateHealthAssessment(ctx context.Context, tx *gorm.DB, record *telemetry.HealthAssessment) (*telemetry.HealthAssessment, error)
	CreateBehaviorAnalysis(ctx context.Context, tx *gorm.DB, record *telemetry.BehaviorAnalysis) (*telemetry.BehaviorAnalysis, error)
	CreateMediaAnalysis(ctx context.Context, tx *gorm.DB, record *telemetry.MediaAnalysis) (*telemetry.MediaAnalysis, error)
	CreateAudioEvents(ctx context.Context, tx *gorm.DB, events []*telemetry.AudioEvent) error
	CreateVideoEvents(ctx context.Context, tx *gorm.DB, events []*telemetry.VideoEvent) error
	CreateSummaryStatistics(ctx context.Context, tx *gorm.DB, record *telemetry.SummaryStatistics) (*telemetry.SummaryStatistics, error)
	CreateSystemStatus(ctx context.Context, tx *gorm.DB, record *telemetry.SystemStatus) (*telemetry.SystemStatus, error)

	GetSystemStatus(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SystemStatus, error)
	// LatestSystemStatusBefore returns the most recent status for the device
	// recorded strictly before the given session, or nil when none exists.
	LatestSystemStatusBefore(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, sessionID uuid.UUID) (*telemetry.SystemStatus, error)
	LoadAggregate(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SessionAggregate, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{db: db, log: baseLog.With("repo", "RecordRepo")}
}

const sampleBatchSize = 500

// conn picks the caller's transaction when one is open.
func (rr *recordRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return rr.db
}

func (rr *recordRepo) CreateVitalSamples(ctx context.Context, tx *gorm.DB, samples []*telemetry.VitalSignsSample) error {
	if len(samples) == 0 {
		return nil
	}
	return rr.conn(tx).WithContext(ctx).CreateInBatches(samples, sampleBatchSize).Error
}

func (rr *recordRepo) CreateMotionSamples(ctx context.Context, tx *gorm.DB, samples []*telemetry.MotionSample) error {
	if len(samples) == 0 {
		return nil
	}
	return rr.conn(tx).WithContext(ctx).CreateInBatches(samples, sampleBatchSize).Error
}

func (rr *recordRepo) CreateHealthAssessment(ctx context.Context, tx *gorm.DB, record *telemetry.HealthAssessment) (*telemetry.HealthAssessment, error) {
	if err := rr.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (rr *recordRepo) CreateBehaviorAnalysis(ctx context.Context, tx *gorm.DB, record *telemetry.BehaviorAnalysis) (*telemetry.BehaviorAnalysis, error) {
	if err := rr.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (rr *recordRepo) CreateMediaAnalysis(ctx context.Context, tx *gorm.DB, record *telemetry.MediaAnalysis) (*telemetry.MediaAnalysis, error) {
	if err := rr.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (rr *recordRepo) CreateAudioEvents(ctx context.Context, tx *gorm.DB, events []*telemetry.AudioEvent) error {
	if len(events) == 0 {
		return nil
	}
	return rr.conn(tx).WithContext(ctx).CreateInBatches(events, sampleBatchSize).Error
}

func (rr *recordRepo) CreateVideoEvents(ctx context.Context, tx *gorm.DB, events []*telemetry.VideoEvent) error {
	if len(events) == 0 {
		return nil
	}
	return rr.conn(tx).WithContext(ctx).CreateInBatches(events, sampleBatchSize).Error
}

func (rr *recordRepo) CreateSummaryStatistics(ctx context.Context, tx *gorm.DB, record *telemetry.SummaryStatistics) (*telemetry.SummaryStatistics, error) {
	if err := rr.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (rr *recordRepo) CreateSystemStatus(ctx context.Context, tx *gorm.DB, record *telemetry.SystemStatus) (*telemetry.SystemStatus, error) {
	if err := rr.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (rr *recordRepo) GetSystemStatus(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SystemStatus, error) {
	var result telemetry.SystemStatus
	if err := rr.conn(tx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (rr *recordRepo) LatestSystemStatusBefore(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, sessionID uuid.UUID) (*telemetry.SystemStatus, error) {
	var result telemetry.SystemStatus
	err := rr.conn(tx).WithContext(ctx).
		Joins("JOIN sensor_data_session s ON s.id = system_status.session_id").
		Where("s.device_id = ? AND s.id <> ? AND s.deleted_at IS NULL", deviceID, sessionID).
		Order("s.recorded_at DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (rr *recordRepo) LoadAggregate(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*telemetry.SessionAggregate, error) {
	db := rr.conn(tx)

	var session telemetry.SensorDataSession
	if err := db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error; err != nil {
		return nil, err
	}

	agg := &telemetry.SessionAggregate{Session: &session}

	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp_offset ASC").
		Find(&agg.Vitals).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp_offset ASC").
		Find(&agg.Motion).Error; err != nil {
		return nil, err
	}

	agg.Assessment = &telemetry.HealthAssessment{}
	if err := firstOrNil(db.WithContext(ctx).Where("session_id = ?", sessionID), &agg.Assessment); err != nil {
		return nil, err
	}
	agg.Behavior = &telemetry.BehaviorAnalysis{}
	if err := firstOrNil(db.WithContext(ctx).Where("session_id = ?", sessionID), &agg.Behavior); err != nil {
		return nil, err
	}
	agg.Media = &telemetry.MediaAnalysis{}
	if err := firstOrNil(db.WithContext(ctx).Where("session_id = ?", sessionID), &agg.Media); err != nil {
		return nil, err
	}
	agg.Summary = &telemetry.SummaryStatistics{}
	if err := firstOrNil(db.WithContext(ctx).Where("session_id = ?", sessionID), &agg.Summary); err != nil {
		return nil, err
	}
	agg.Status = &telemetry.SystemStatus{}
	if err := firstOrNil(db.WithContext(ctx).Where("session_id = ?", sessionID), &agg.Status); err != nil {
		return nil, err
	}

	if agg.Media != nil {
		if err := db.WithContext(ctx).
			Where("media_analysis_id = ?", agg.Media.ID).
			Order("timestamp_offset ASC").
			Find(&agg.AudioEvents).Error; err != nil {
			return nil, err
		}
		if err := db.WithContext(ctx).
			Where("media_analysis_id = ?", agg.Media.ID).
			Order("timestamp_offset ASC").
			Find(&agg.VideoEvents).Error; err != nil {
			return nil, err
		}
	}

	return agg, nil
}

// firstOrNil loads a single optional row into *dest, setting *dest to nil
// when the row does not exist.
func firstOrNil[T any](q *gorm.DB, dest **T) error {
	err := q.First(*dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			*dest = nil
			return nil
		}
		return err
	}
	return nil
}
