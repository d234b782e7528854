package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type BindingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, binding *registry.PetDeviceBinding) (*registry.PetDeviceBinding, error)
	GetByID(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID) (*registry.PetDeviceBinding, error)
	GetActiveByDeviceID(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID) (*registry.PetDeviceBinding, error)
	ListActiveByPetIDs(ctx context.Context, tx *gorm.DB, petIDs []uuid.UUID) ([]*registry.PetDeviceBinding, error)
	ListActiveByDeviceIDs(ctx context.Context, tx *gorm.DB, deviceIDs []uuid.UUID) ([]*registry.PetDeviceBinding, error)
	// DeactivateForDevice closes any open binding on the device so a new one
	// can claim the partial unique index slot.
	DeactivateForDevice(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, unboundAt time.Time) error
	Deactivate(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID, unboundAt time.Time) error
}

type bindingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBindingRepo(db *gorm.DB, baseLog *logger.Logger) BindingRepo {
	return &bindingRepo{db: db, log: baseLog.With("repo", "BindingRepo")}
}

// conn picks the caller's transaction when one is open.
func (br *bindingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return br.db
}

func (br *bindingRepo) Create(ctx context.Context, tx *gorm.DB, binding *registry.PetDeviceBinding) (*registry.PetDeviceBinding, error) {
	if err := br.conn(tx).WithContext(ctx).Create(binding).Error; err != nil {
		return nil, err
	}
	return binding, nil
}

func (br *bindingRepo) GetByID(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID) (*registry.PetDeviceBinding, error) {
	var result registry.PetDeviceBinding
	if err := br.conn(tx).WithContext(ctx).
		Where("id = ?", bindingID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// GetActiveByDeviceID returns nil, nil for an unbound device.
func (br *bindingRepo) GetActiveByDeviceID(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID) (*registry.PetDeviceBinding, error) {
	var result registry.PetDeviceBinding
	err := br.conn(tx).WithContext(ctx).
		Where("device_id = ? AND is_active", deviceID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (br *bindingRepo) ListActiveByPetIDs(ctx context.Context, tx *gorm.DB, petIDs []uuid.UUID) ([]*registry.PetDeviceBinding, error) {
	var results []*registry.PetDeviceBinding
	if len(petIDs) == 0 {
		return results, nil
	}
	if err := br.conn(tx).WithContext(ctx).
		Where("pet_id IN ? AND is_active", petIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *bindingRepo) ListActiveByDeviceIDs(ctx context.Context, tx *gorm.DB, deviceIDs []uuid.UUID) ([]*registry.PetDeviceBinding, error) {
	var results []*registry.PetDeviceBinding
	if len(deviceIDs) == 0 {
		return results, nil
	}
	if err := br.conn(tx).WithContext(ctx).
		Where("device_id IN ? AND is_active", deviceIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *bindingRepo) DeactivateForDevice(ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, unboundAt time.Time) error {
	return br.conn(tx).WithContext(ctx).
		Model(&registry.PetDeviceBinding{}).
		Where("device_id = ? AND is_active", deviceID).
		Updates(map[string]any{
			"is_active":  false,
			"unbound_at": unboundAt,
		}).Error
}

func (br *bindingRepo) Deactivate(ctx context.Context, tx *gorm.DB, bindingID uuid.UUID, unboundAt time.Time) error {
	return br.conn(tx).WithContext(ctx).
		Model(&registry.PetDeviceBinding{}).
		Where("id = ? AND is_active", bindingID).
		Updates(map[string]any{
			"is_active":  false,
			"unbound_at": unboundAt,
		}).Error
}
