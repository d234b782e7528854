package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dataagg "github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type DeviceRegistration struct {
	ExternalID      string
	Name            string
	Type            string
	Model           string
	FirmwareVersion string
	HardwareVersion string
}

// ProvisionedDevice carries the plaintext enrollment key exactly once, at
// registration time. Only the bcrypt hash is stored.
type ProvisionedDevice struct {
	Device        *registry.Device
	EnrollmentKey string
}

// DeviceService manages the device registry and pet bindings. Registration
// is open to any authenticated user; everything else is scoped through the
// binding chain, so an unreachable device reads as missing.
type DeviceService interface {
	Register(ctx context.Context, userID uuid.UUID, in DeviceRegistration) (*ProvisionedDevice, error)
	List(ctx context.Context, userID uuid.UUID) ([]*registry.Device, error)
	Get(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID) (*registry.Device, error)
	UpdateStatus(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID, status string) (*registry.Device, error)
	Bind(ctx context.Context, userID uuid.UUID, petID, deviceID uuid.UUID) (*registry.PetDeviceBinding, error)
	Unbind(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID) error
	// VerifyKey authenticates a device upload by external id and plaintext
	// enrollment key.
	VerifyKey(ctx context.Context, externalID, key string) (*registry.Device, error)
}

type deviceService struct {
	db       *gorm.DB
	log      *logger.Logger
	devices  repos.DeviceRepo
	pets     repos.PetRepo
	bindings repos.BindingRepo
}

func NewDeviceService(db *gorm.DB, baseLog *logger.Logger, devices repos.DeviceRepo, pets repos.PetRepo, bindings repos.BindingRepo) DeviceService {
	return &deviceService{
		db:       db,
		log:      baseLog.With("service", "DeviceService"),
		devices:  devices,
		pets:     pets,
		bindings: bindings,
	}
}

func (s *deviceService) Register(ctx context.Context, userID uuid.UUID, in DeviceRegistration) (*ProvisionedDevice, error) {
	const op = "Registry.Device.Register"
	if s == nil || s.devices == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "device service not configured", nil)
	}

	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "external id is required", nil)
	}

	key, err := newEnrollmentKey()
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "enrollment key generation failed", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "enrollment key hashing failed", err)
	}

	device := &registry.Device{
		ID:                uuid.New(),
		ExternalID:        externalID,
		Name:              strings.TrimSpace(in.Name),
		Type:              strings.TrimSpace(in.Type),
		Model:             strings.TrimSpace(in.Model),
		FirmwareVersion:   strings.TrimSpace(in.FirmwareVersion),
		HardwareVersion:   strings.TrimSpace(in.HardwareVersion),
		Status:            string(registry.DeviceStatusInactive),
		EnrollmentKeyHash: string(hash),
	}
	if device.Type == "" {
		device.Type = "collar"
	}

	if _, err := s.devices.Create(ctx, nil, []*registry.Device{device}); err != nil {
		mapped := dataagg.MapError(op, err)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			return nil, domainagg.NewError(domainagg.CodeConflict, op, fmt.Sprintf("device already registered: %s", externalID), err)
		}
		return nil, mapped
	}

	s.log.Info("Device registered", "device_id", device.ID, "external_id", externalID, "registered_by", userID)
	return &ProvisionedDevice{Device: device, EnrollmentKey: key}, nil
}

func (s *deviceService) List(ctx context.Context, userID uuid.UUID) ([]*registry.Device, error) {
	if s == nil || s.devices == nil {
		return nil, fmt.Errorf("deviceService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if len(scope.DeviceIDs) == 0 {
		return []*registry.Device{}, nil
	}
	return s.devices.GetByIDs(ctx, nil, scope.DeviceIDs)
}

func (s *deviceService) Get(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID) (*registry.Device, error) {
	if s == nil || s.devices == nil {
		return nil, fmt.Errorf("deviceService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if !scope.OwnsDevice(deviceID) {
		return nil, fmt.Errorf("device %s: %w", deviceID, gorm.ErrRecordNotFound)
	}
	return s.devices.GetByID(ctx, nil, deviceID)
}

func (s *deviceService) UpdateStatus(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID, status string) (*registry.Device, error) {
	const op = "Registry.Device.UpdateStatus"
	if s == nil || s.devices == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "device service not configured", nil)
	}

	if !registry.ValidDeviceStatus(status) {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("invalid device status: %s", status), nil)
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "resolve ownership", err)
	}
	if !scope.OwnsDevice(deviceID) {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("device not found: %s", deviceID), gorm.ErrRecordNotFound)
	}

	if err := s.devices.UpdateStatus(ctx, nil, deviceID, status); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	s.log.Info("Device status updated", "device_id", deviceID, "status", status, "updated_by", userID)
	return s.devices.GetByID(ctx, nil, deviceID)
}

// Bind attaches a device to one of the caller's pets. Any prior binding on
// the device is closed in the same transaction; a device actively bound to
// another owner's pet cannot be taken over.
func (s *deviceService) Bind(ctx context.Context, userID uuid.UUID, petID, deviceID uuid.UUID) (*registry.PetDeviceBinding, error) {
	const op = "Registry.Binding.Bind"
	if s == nil || s.db == nil || s.bindings == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "device service not configured", nil)
	}

	pet, err := s.pets.GetByID(ctx, nil, petID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if pet.OwnerID != userID {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("pet not found: %s", petID), gorm.ErrRecordNotFound)
	}
	device, err := s.devices.GetByID(ctx, nil, deviceID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}

	existing, err := s.bindings.GetActiveByDeviceID(ctx, nil, deviceID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if existing != nil {
		if existing.PetID == petID {
			return existing, nil
		}
		current, err := s.pets.GetByID(ctx, nil, existing.PetID)
		if err != nil {
			return nil, dataagg.MapError(op, err)
		}
		if current.OwnerID != userID {
			return nil, domainagg.NewError(domainagg.CodeConflict, op, "device is bound to another owner's pet", nil)
		}
	}

	now := time.Now().UTC()
	binding := &registry.PetDeviceBinding{
		ID:       uuid.New(),
		PetID:    petID,
		DeviceID: deviceID,
		IsActive: true,
		BoundAt:  now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bindings.DeactivateForDevice(ctx, tx, deviceID, now); err != nil {
			return err
		}
		_, err := s.bindings.Create(ctx, tx, binding)
		return err
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}

	s.log.Info("Device bound", "device_id", device.ID, "pet_id", petID, "binding_id", binding.ID)
	return binding, nil
}

func (s *deviceService) Unbind(ctx context.Context, userID uuid.UUID, deviceID uuid.UUID) error {
	const op = "Registry.Binding.Unbind"
	if s == nil || s.bindings == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "device service not configured", nil)
	}

	existing, err := s.bindings.GetActiveByDeviceID(ctx, nil, deviceID)
	if err != nil {
		return dataagg.MapError(op, err)
	}
	if existing == nil {
		return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("no active binding for device: %s", deviceID), gorm.ErrRecordNotFound)
	}
	pet, err := s.pets.GetByID(ctx, nil, existing.PetID)
	if err != nil {
		return dataagg.MapError(op, err)
	}
	if pet.OwnerID != userID {
		return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("no active binding for device: %s", deviceID), gorm.ErrRecordNotFound)
	}

	if err := s.bindings.Deactivate(ctx, nil, existing.ID, time.Now().UTC()); err != nil {
		return dataagg.MapError(op, err)
	}
	s.log.Info("Device unbound", "device_id", deviceID, "binding_id", existing.ID)
	return nil
}

func (s *deviceService) VerifyKey(ctx context.Context, externalID, key string) (*registry.Device, error) {
	if s == nil || s.devices == nil {
		return nil, fmt.Errorf("deviceService not configured")
	}

	device, err := s.devices.GetByExternalID(ctx, nil, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	if device.EnrollmentKeyHash == "" {
		return nil, fmt.Errorf("device has no enrollment key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.EnrollmentKeyHash), []byte(key)); err != nil {
		return nil, fmt.Errorf("invalid device key")
	}
	return device, nil
}

func newEnrollmentKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
