package user

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/identity"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, users []*identity.User) ([]*identity.User, error)
	GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*identity.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*identity.User, error)
	EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error)
	UpdateProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID, fields map[string]any) error
	UpdateAvatarFields(ctx context.Context, tx *gorm.DB, userID uuid.UUID, bucketKey, avatarURL string) error
	UpdateAvatarColor(ctx context.Context, tx *gorm.DB, userID uuid.UUID, avatarColor string) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

// conn picks the caller's transaction when one is open.
func (ur *userRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ur.db
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*identity.User) ([]*identity.User, error) {
	if len(users) == 0 {
		return []*identity.User{}, nil
	}
	if err := ur.conn(tx).WithContext(ctx).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*identity.User, error) {
	var result identity.User
	if err := ur.conn(tx).WithContext(ctx).
		Where("id = ?", userID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (ur *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*identity.User, error) {
	var result identity.User
	if err := ur.conn(tx).WithContext(ctx).
		Where("email = ?", email).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (ur *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	var count int64
	if err := ur.conn(tx).WithContext(ctx).
		Model(&identity.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) UpdateProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return ur.conn(tx).WithContext(ctx).
		Model(&identity.User{}).
		Where("id = ?", userID).
		Updates(fields).Error
}

func (ur *userRepo) UpdateAvatarFields(ctx context.Context, tx *gorm.DB, userID uuid.UUID, bucketKey, avatarURL string) error {
	return ur.conn(tx).WithContext(ctx).
		Model(&identity.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"avatar_bucket_key": bucketKey,
			"avatar_url":        avatarURL,
		}).Error
}

func (ur *userRepo) UpdateAvatarColor(ctx context.Context, tx *gorm.DB, userID uuid.UUID, avatarColor string) error {
	return ur.conn(tx).WithContext(ctx).
		Model(&identity.User{}).
		Where("id = ?", userID).
		Update("avatar_color", avatarColor).Error
}
