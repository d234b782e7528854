package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type PetCreate struct {
	Name     string
	Species  string
	Breed    string
	Gender   string
	BirthAt  *time.Time
	WeightKg *float64
}

// PetUpdate carries optional field changes; nil means leave the field alone.
type PetUpdate struct {
	Name     *string
	Species  *string
	Breed    *string
	Gender   *string
	BirthAt  *time.Time
	WeightKg *float64
}

// PetService owns the pet roster. Every operation except Create is scoped to
// the owner, and a pet owned by someone else reads as missing.
type PetService interface {
	Create(ctx context.Context, ownerID uuid.UUID, in PetCreate) (*registry.Pet, error)
	Get(ctx context.Context, userID, petID uuid.UUID) (*registry.Pet, error)
	List(ctx context.Context, userID uuid.UUID) ([]*registry.Pet, error)
	Update(ctx context.Context, userID, petID uuid.UUID, in PetUpdate) (*registry.Pet, error)
	Delete(ctx context.Context, userID, petID uuid.UUID) error
	SetAvatarFromImage(ctx context.Context, userID, petID uuid.UUID, raw []byte) (*registry.Pet, error)
}

type petService struct {
	db       *gorm.DB
	log      *logger.Logger
	pets     repos.PetRepo
	bindings repos.BindingRepo
	avatars  AvatarService
}

// NewPetService wires the pet roster; avatars may be nil, which disables
// avatar generation without affecting the rest of the CRUD surface.
func NewPetService(db *gorm.DB, baseLog *logger.Logger, pets repos.PetRepo, bindings repos.BindingRepo, avatars AvatarService) PetService {
	return &petService{
		db:       db,
		log:      baseLog.With("service", "PetService"),
		pets:     pets,
		bindings: bindings,
		avatars:  avatars,
	}
}

func (s *petService) Create(ctx context.Context, ownerID uuid.UUID, in PetCreate) (*registry.Pet, error) {
	const op = "Registry.Pet.Create"
	if s == nil || s.pets == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "pet service not configured", nil)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "pet name is required", nil)
	}
	if in.WeightKg != nil && *in.WeightKg <= 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "weight must be positive", nil)
	}
	if in.BirthAt != nil && in.BirthAt.After(time.Now()) {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "birth date is in the future", nil)
	}

	species := strings.ToLower(strings.TrimSpace(in.Species))
	if species == "" {
		species = "dog"
	}

	pet := &registry.Pet{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Name:     name,
		Species:  species,
		Breed:    strings.TrimSpace(in.Breed),
		Gender:   strings.ToLower(strings.TrimSpace(in.Gender)),
		BirthAt:  in.BirthAt,
		WeightKg: in.WeightKg,
	}

	if _, err := s.pets.Create(ctx, nil, []*registry.Pet{pet}); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	s.log.Info("Pet created", "pet_id", pet.ID, "owner_id", ownerID, "species", species)

	// Best-effort; the create already succeeded.
	s.generateAvatar(ctx, pet)

	return pet, nil
}

func (s *petService) Get(ctx context.Context, userID, petID uuid.UUID) (*registry.Pet, error) {
	if s == nil || s.pets == nil {
		return nil, fmt.Errorf("petService not configured")
	}
	pet, err := s.pets.GetByID(ctx, nil, petID)
	if err != nil {
		return nil, err
	}
	if pet.OwnerID != userID {
		// Out of scope reads like absent; existence stays private.
		return nil, fmt.Errorf("pet %s: %w", petID, gorm.ErrRecordNotFound)
	}
	return pet, nil
}

func (s *petService) List(ctx context.Context, userID uuid.UUID) ([]*registry.Pet, error) {
	if s == nil || s.pets == nil {
		return nil, fmt.Errorf("petService not configured")
	}
	return s.pets.ListByOwner(ctx, nil, userID)
}

func (s *petService) Update(ctx context.Context, userID, petID uuid.UUID, in PetUpdate) (*registry.Pet, error) {
	const op = "Registry.Pet.Update"

	pet, err := s.Get(ctx, userID, petID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	renamed := false
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "pet name cannot be empty", nil)
		}
		if name != pet.Name {
			fields["name"] = name
			renamed = true
		}
	}
	if in.Species != nil {
		species := strings.ToLower(strings.TrimSpace(*in.Species))
		if species == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "species cannot be empty", nil)
		}
		fields["species"] = species
	}
	if in.Breed != nil {
		fields["breed"] = strings.TrimSpace(*in.Breed)
	}
	if in.Gender != nil {
		fields["gender"] = strings.ToLower(strings.TrimSpace(*in.Gender))
	}
	if in.BirthAt != nil {
		if in.BirthAt.After(time.Now()) {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "birth date is in the future", nil)
		}
		fields["birth_at"] = *in.BirthAt
	}
	if in.WeightKg != nil {
		if *in.WeightKg <= 0 {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "weight must be positive", nil)
		}
		fields["weight_kg"] = *in.WeightKg
	}

	if len(fields) == 0 {
		return pet, nil
	}

	if err := s.pets.UpdateFields(ctx, nil, petID, fields); err != nil {
		return nil, dataagg.MapError(op, err)
	}

	updated, err := s.pets.GetByID(ctx, nil, petID)
	if err != nil {
		return nil, err
	}

	// New initials need a new picture; the rename itself already stuck.
	if renamed {
		s.generateAvatar(ctx, updated)
	}

	return updated, nil
}

func (s *petService) Delete(ctx context.Context, userID, petID uuid.UUID) error {
	const op = "Registry.Pet.Delete"

	if _, err := s.Get(ctx, userID, petID); err != nil {
		return err
	}

	// Open bindings close with the pet so the device frees up for rebinding.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.bindings.ListActiveByPetIDs(ctx, tx, []uuid.UUID{petID})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, binding := range active {
			if err := s.bindings.Deactivate(ctx, tx, binding.ID, now); err != nil {
				return err
			}
		}
		return s.pets.SoftDelete(ctx, tx, petID)
	})
	if err != nil {
		return dataagg.MapError(op, err)
	}

	s.log.Info("Pet deleted", "pet_id", petID, "owner_id", userID)
	return nil
}

func (s *petService) SetAvatarFromImage(ctx context.Context, userID, petID uuid.UUID, raw []byte) (*registry.Pet, error) {
	const op = "Registry.Pet.SetAvatar"

	pet, err := s.Get(ctx, userID, petID)
	if err != nil {
		return nil, err
	}
	if s.avatars == nil {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, op, "avatar service not configured", nil)
	}
	if len(raw) == 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "empty upload", nil)
	}

	if err := s.avatars.CreateAndUploadPetAvatarFromImage(ctx, pet, raw); err != nil {
		if errors.Is(err, ErrInvalidImage) {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "uploaded file is not a supported image", err)
		}
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "avatar upload failed", err)
	}

	if err := s.pets.UpdateAvatarFields(ctx, nil, pet.ID, pet.AvatarBucketKey, pet.AvatarURL, pet.AvatarColor); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return pet, nil
}

// generateAvatar renders and persists an initials avatar; failures log and
// the caller's operation stands.
func (s *petService) generateAvatar(ctx context.Context, pet *registry.Pet) {
	if s.avatars == nil {
		return
	}
	if err := s.avatars.CreateAndUploadPetAvatar(ctx, pet); err != nil {
		s.log.Warn("Pet avatar generation failed", "pet_id", pet.ID, "error", err)
		return
	}
	if err := s.pets.UpdateAvatarFields(ctx, nil, pet.ID, pet.AvatarBucketKey, pet.AvatarURL, pet.AvatarColor); err != nil {
		s.log.Warn("Pet avatar fields update failed", "pet_id", pet.ID, "error", err)
	}
}
