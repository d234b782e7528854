package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dataagg "github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/identity"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// UserProfileUpdate carries optional field changes; nil means leave the
// field alone.
type UserProfileUpdate struct {
	FirstName *string
	LastName  *string
	Locale    *string
}

// UserService reads and edits the local profile row. Account creation and
// token issuance live in the identity platform, not here.
type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*identity.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in UserProfileUpdate) (*identity.User, error)
	UpdateAvatarColor(ctx context.Context, userID uuid.UUID, avatarColor string) (*identity.User, error)
	SetAvatarFromImage(ctx context.Context, userID uuid.UUID, raw []byte) (*identity.User, error)
}

type userService struct {
	log     *logger.Logger
	users   repos.UserRepo
	avatars AvatarService
}

func NewUserService(baseLog *logger.Logger, users repos.UserRepo, avatars AvatarService) UserService {
	return &userService{
		log:     baseLog.With("service", "UserService"),
		users:   users,
		avatars: avatars,
	}
}

func (s *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("userService not configured")
	}
	return s.users.GetByID(ctx, nil, userID)
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UserProfileUpdate) (*identity.User, error) {
	const op = "Identity.User.UpdateProfile"

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	renamed := false
	if in.FirstName != nil {
		first := strings.TrimSpace(*in.FirstName)
		if first == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "first name cannot be empty", nil)
		}
		if first != user.FirstName {
			fields["first_name"] = first
			renamed = true
		}
	}
	if in.LastName != nil {
		last := strings.TrimSpace(*in.LastName)
		if last == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "last name cannot be empty", nil)
		}
		if last != user.LastName {
			fields["last_name"] = last
			renamed = true
		}
	}
	if in.Locale != nil {
		locale := strings.ToLower(strings.TrimSpace(*in.Locale))
		if locale == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "locale cannot be empty", nil)
		}
		fields["locale"] = locale
	}

	if len(fields) == 0 {
		return user, nil
	}

	if err := s.users.UpdateProfile(ctx, nil, userID, fields); err != nil {
		return nil, dataagg.MapError(op, err)
	}

	updated, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	// New initials need a new picture; the rename itself already stuck.
	if renamed {
		s.regenerateAvatar(ctx, updated)
	}

	return updated, nil
}

func (s *userService) UpdateAvatarColor(ctx context.Context, userID uuid.UUID, avatarColor string) (*identity.User, error) {
	const op = "Identity.User.UpdateAvatarColor"

	color := strings.ToUpper(strings.TrimSpace(avatarColor))
	if color == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "avatar color is required", nil)
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateAvatarColor(ctx, nil, userID, color); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	user.AvatarColor = color

	s.regenerateAvatar(ctx, user)

	return user, nil
}

func (s *userService) SetAvatarFromImage(ctx context.Context, userID uuid.UUID, raw []byte) (*identity.User, error) {
	const op = "Identity.User.SetAvatar"

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.avatars == nil {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, op, "avatar service not configured", nil)
	}
	if len(raw) == 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "empty upload", nil)
	}

	if err := s.avatars.CreateAndUploadUserAvatarFromImage(ctx, user, raw); err != nil {
		if errors.Is(err, ErrInvalidImage) {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "uploaded file is not a supported image", err)
		}
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "avatar upload failed", err)
	}

	if err := s.users.UpdateAvatarFields(ctx, nil, userID, user.AvatarBucketKey, user.AvatarURL); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return user, nil
}

// regenerateAvatar renders and persists a fresh initials avatar; failures
// log and the caller's operation stands.
func (s *userService) regenerateAvatar(ctx context.Context, user *identity.User) {
	if s.avatars == nil {
		return
	}
	if err := s.avatars.CreateAndUploadUserAvatar(ctx, user); err != nil {
		s.log.Warn("User avatar generation failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdateAvatarFields(ctx, nil, user.ID, user.AvatarBucketKey, user.AvatarURL); err != nil {
		s.log.Warn("User avatar fields update failed", "user_id", user.ID, "error", err)
	}
}
