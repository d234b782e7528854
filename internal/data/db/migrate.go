package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/domain/identity"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Identity
		&identity.User{},

		// Registry: pets, devices, and who wears what
		&registry.Pet{},
		&registry.Device{},
		&registry.PetDeviceBinding{},

		// Telemetry: one session plus its child records
		&telemetry.SensorDataSession{},
		&telemetry.VitalSignsSample{},
		&telemetry.MotionSample{},
		&telemetry.HealthAssessment{},
		&telemetry.BehaviorAnalysis{},
		&telemetry.MediaAnalysis{},
		&telemetry.AudioEvent{},
		&telemetry.VideoEvent{},
		&telemetry.SummaryStatistics{},
		&telemetry.SystemStatus{},

		// Derived: alerts and the cached analysis row
		&telemetry.HealthAlert{},
		&telemetry.SensorAnalysis{},
	)
}

// indexDDL pairs an index name with its CREATE statement so failures name
// the index they died on.
type indexDDL struct {
	name string
	stmt string
}

func ensureIndexes(db *gorm.DB, defs []indexDDL) error {
	for _, def := range defs {
		if err := db.Exec(def.stmt).Error; err != nil {
			return fmt.Errorf("create %s: %w", def.name, err)
		}
	}
	return nil
}

var registryIndexes = []indexDDL{
	// One active binding per device; history rows keep is_active = false.
	{"idx_binding_device_active", `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_binding_device_active
		ON pet_device_binding (device_id)
		WHERE deleted_at IS NULL AND is_active;`},
	{"idx_binding_pet_active", `
		CREATE INDEX IF NOT EXISTS idx_binding_pet_active
		ON pet_device_binding (pet_id)
		WHERE deleted_at IS NULL AND is_active;`},
	{"idx_pet_owner", `
		CREATE INDEX IF NOT EXISTS idx_pet_owner ON pet (owner_id) WHERE deleted_at IS NULL;`},
}

var telemetryIndexes = []indexDDL{
	// Session lookups are device-scoped and time-ordered.
	{"idx_sensor_session_device_recorded", `
		CREATE INDEX IF NOT EXISTS idx_sensor_session_device_recorded
		ON sensor_data_session (device_id, recorded_at DESC);`},

	// Sample scans replay a session in offset order.
	{"idx_vital_sample_session_offset", `
		CREATE INDEX IF NOT EXISTS idx_vital_sample_session_offset
		ON vital_signs_sample (session_id, timestamp_offset);`},
	{"idx_motion_sample_session_offset", `
		CREATE INDEX IF NOT EXISTS idx_motion_sample_session_offset
		ON motion_sample (session_id, timestamp_offset);`},

	// Alert feeds filter by device/pet and unread/unresolved state.
	{"idx_health_alert_device_created", `
		CREATE INDEX IF NOT EXISTS idx_health_alert_device_created
		ON health_alert (device_id, created_at DESC)
		WHERE deleted_at IS NULL;`},
	{"idx_health_alert_pet_unread", `
		CREATE INDEX IF NOT EXISTS idx_health_alert_pet_unread
		ON health_alert (pet_id, created_at DESC)
		WHERE deleted_at IS NULL AND NOT is_read;`},

	// At most one live analysis per session. Concurrent triggers race to this
	// index; losers map the 23505 to conflict and fetch the winner's row.
	{"idx_sensor_analysis_session", `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sensor_analysis_session
		ON sensor_analysis (session_id)
		WHERE deleted_at IS NULL;`},
	{"idx_sensor_analysis_pet_created", `
		CREATE INDEX IF NOT EXISTS idx_sensor_analysis_pet_created
		ON sensor_analysis (pet_id, created_at DESC)
		WHERE deleted_at IS NULL;`},
}

func EnsureRegistryIndexes(db *gorm.DB) error {
	// uuid-ossp is normally on already via NewPostgresService; re-running
	// costs nothing.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	return ensureIndexes(db, registryIndexes)
}

func EnsureTelemetryIndexes(db *gorm.DB) error {
	return ensureIndexes(db, telemetryIndexes)
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("migrating postgres schema")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("schema migration failed", "error", err)
		return err
	}
	if err := EnsureRegistryIndexes(s.db); err != nil {
		s.log.Error("registry index migration failed", "error", err)
		return err
	}
	if err := EnsureTelemetryIndexes(s.db); err != nil {
		s.log.Error("telemetry index migration failed", "error", err)
		return err
	}
	return nil
}
