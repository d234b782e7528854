package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/identity"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

func seed[T any](tb testing.TB, ctx context.Context, tx *gorm.DB, what string, row *T) *T {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed %s: %v", what, err)
	}
	return row
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *identity.User {
	tb.Helper()
	return seed(tb, ctx, tx, "user", &identity.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
	})
}

func SeedPet(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, name string) *registry.Pet {
	tb.Helper()
	return seed(tb, ctx, tx, "pet", &registry.Pet{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    name,
		Species: "dog",
	})
}

func SeedDevice(tb testing.TB, ctx context.Context, tx *gorm.DB, externalID string) *registry.Device {
	tb.Helper()
	return seed(tb, ctx, tx, "device", &registry.Device{
		ID:         uuid.New(),
		ExternalID: externalID,
		Name:       "collar",
		Type:       "collar",
		Status:     string(registry.DeviceStatusActive),
	})
}

func SeedBinding(tb testing.TB, ctx context.Context, tx *gorm.DB, petID, deviceID uuid.UUID) *registry.PetDeviceBinding {
	tb.Helper()
	return seed(tb, ctx, tx, "binding", &registry.PetDeviceBinding{
		ID:       uuid.New(),
		PetID:    petID,
		DeviceID: deviceID,
		IsActive: true,
		BoundAt:  time.Now().UTC(),
	})
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, sessionID string) *telemetry.SensorDataSession {
	tb.Helper()
	return seed(tb, ctx, tx, "session", &telemetry.SensorDataSession{
		ID:                  uuid.New(),
		DeviceID:            deviceID,
		SessionID:           sessionID,
		RecordedAt:          time.Now().UTC().Add(-time.Minute),
		FirmwareVersion:     "2.1.3",
		DataIntervalSeconds: 30,
		UploadReason:        string(telemetry.UploadReasonScheduled),
	})
}

func SeedSystemStatus(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, batteryLevel int) *telemetry.SystemStatus {
	tb.Helper()
	return seed(tb, ctx, tx, "system status", &telemetry.SystemStatus{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		BatteryLevel:       batteryLevel,
		MemoryUsagePercent: 40,
		StorageAvailableMB: 1024,
	})
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
