package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type DeviceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, devices []*registry.Device) ([]*registry.Device, error)
	GetByID(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID) (*registry.Device, error)
	GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*registry.Device, error)
	// LockByExternalID takes a row lock so concurrent uploads from the same
	// device serialize inside the ingestion transaction. Requires tx.
	LockByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*registry.Device, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, deviceIDs []uuid.UUID) ([]*registry.Device, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, status string) error
	// MarkSynced refreshes liveness in one write as part of the ingestion
	// transaction: last_online_at/last_sync_at to now, battery from the
	// payload, status forced to active.
	MarkSynced(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, batteryLevel int, now time.Time) error
	// ListStaleActive returns active devices whose last_online_at is older
	// than the cutoff (or never set); the offline sweeper feeds on this.
	ListStaleActive(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*registry.Device, error)
	// MarkOffline flips a device to inactive only while it is still active
	// and still stale. The returned bool reports whether this call did the
	// flip, so concurrent sweeps and a racing upload never double-alert.
	MarkOffline(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, cutoff time.Time) (bool, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, fields map[string]any) error
}

type deviceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeviceRepo(db *gorm.DB, baseLog *logger.Logger) DeviceRepo {
	return &deviceRepo{db: db, log: baseLog.With("repo", "DeviceRepo")}
}

// conn picks the caller's transaction when one is open.
func (dr *deviceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return dr.db
}

func (dr *deviceRepo) Create(ctx context.Context, tx *gorm.DB, devices []*registry.Device) ([]*registry.Device, error) {
	if len(devices) == 0 {
		return []*registry.Device{}, nil
	}
	if err := dr.conn(tx).WithContext(ctx).Create(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (dr *deviceRepo) GetByID(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID) (*registry.Device, error) {
	var result registry.Device
	if err := dr.conn(tx).WithContext(ctx).
		Where("id = ?", deviceID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (dr *deviceRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*registry.Device, error) {
	var result registry.Device
	if err := dr.conn(tx).WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (dr *deviceRepo) LockByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*registry.Device, error) {
	if tx == nil {
		return nil, fmt.Errorf("LockByExternalID requires a transaction")
	}

	var result registry.Device
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", externalID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (dr *deviceRepo) GetByIDs(ctx context.Context, tx *gorm.DB, deviceIDs []uuid.UUID) ([]*registry.Device, error) {
	var results []*registry.Device
	if len(deviceIDs) == 0 {
		return results, nil
	}
	if err := dr.conn(tx).WithContext(ctx).
		Where("id IN ?", deviceIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (dr *deviceRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, status string) error {
	return dr.conn(tx).WithContext(ctx).
		Model(&registry.Device{}).
		Where("id = ?", deviceID).
		Update("status", status).Error
}

func (dr *deviceRepo) MarkSynced(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, batteryLevel int, now time.Time) error {
	return dr.conn(tx).WithContext(ctx).
		Model(&registry.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]any{
			"last_online_at": now,
			"last_sync_at":   now,
			"battery_level":  batteryLevel,
			"status":         string(registry.DeviceStatusActive),
		}).Error
}

func (dr *deviceRepo) ListStaleActive(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*registry.Device, error) {
	var results []*registry.Device
	q := dr.conn(tx).WithContext(ctx).
		Where("status = ?", string(registry.DeviceStatusActive)).
		Where("last_online_at IS NULL OR last_online_at < ?", cutoff).
		Order("last_online_at ASC NULLS FIRST")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (dr *deviceRepo) MarkOffline(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, cutoff time.Time) (bool, error) {
	res := dr.conn(tx).WithContext(ctx).
		Model(&registry.Device{}).
		Where("id = ?", deviceID).
		Where("status = ?", string(registry.DeviceStatusActive)).
		Where("last_online_at IS NULL OR last_online_at < ?", cutoff).
		Update("status", string(registry.DeviceStatusInactive))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (dr *deviceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return dr.conn(tx).WithContext(ctx).
		Model(&registry.Device{}).
		Where("id = ?", deviceID).
		Updates(fields).Error
}
