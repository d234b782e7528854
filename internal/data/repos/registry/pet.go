package registry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type PetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pets []*registry.Pet) ([]*registry.Pet, error)
	GetByID(ctx context.Context, tx *gorm.DB, petID uuid.UUID) (*registry.Pet, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*registry.Pet, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, petID uuid.UUID, fields map[string]any) error
	UpdateAvatarFields(ctx context.Context, tx *gorm.DB, petID uuid.UUID, bucketKey, avatarURL, avatarColor string) error
	SoftDelete(ctx context.Context, tx *gorm.DB, petID uuid.UUID) error
}

type petRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPetRepo(db *gorm.DB, baseLog *logger.Logger) PetRepo {
	return &petRepo{db: db, log: baseLog.With("repo", "PetRepo")}
}

// conn picks the caller's transaction when one is open.
func (pr *petRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return pr.db
}

func (pr *petRepo) Create(ctx context.Context, tx *gorm.DB, pets []*registry.Pet) ([]*registry.Pet, error) {
	if len(pets) == 0 {
		return []*registry.Pet{}, nil
	}
	if err := pr.conn(tx).WithContext(ctx).Create(&pets).Error; err != nil {
		return nil, err
	}
	return pets, nil
}

func (pr *petRepo) GetByID(ctx context.Context, tx *gorm.DB, petID uuid.UUID) (*registry.Pet, error) {
	var result registry.Pet
	if err := pr.conn(tx).WithContext(ctx).
		Where("id = ?", petID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (pr *petRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*registry.Pet, error) {
	var results []*registry.Pet
	if err := pr.conn(tx).WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *petRepo) UpdateFields(ctx context.Context, tx *gorm.DB, petID uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return pr.conn(tx).WithContext(ctx).
		Model(&registry.Pet{}).
		Where("id = ?", petID).
		Updates(fields).Error
}

func (pr *petRepo) UpdateAvatarFields(ctx context.Context, tx *gorm.DB, petID uuid.UUID, bucketKey, avatarURL, avatarColor string) error {
	return pr.conn(tx).WithContext(ctx).
		Model(&registry.Pet{}).
		Where("id = ?", petID).
		Updates(map[string]any{
			"avatar_bucket_key": bucketKey,
			"avatar_url":        avatarURL,
			"avatar_color":      avatarColor,
		}).Error
}

func (pr *petRepo) SoftDelete(ctx context.Context, tx *gorm.DB, petID uuid.UUID) error {
	return pr.conn(tx).WithContext(ctx).
		Where("id = ?", petID).
		Delete(&registry.Pet{}).Error
}
