package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusInactive    DeviceStatus = "inactive"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusRetired     DeviceStatus = "retired"
)

func ValidDeviceStatus(s string) bool {
	switch DeviceStatus(s) {
	case DeviceStatusActive, DeviceStatusInactive, DeviceStatusMaintenance, DeviceStatusRetired:
		return true
	}
	return false
}

// Device is one physical wearable. ExternalID is the factory-assigned id the
// hardware sends in every upload (e.g. "PET_MONITOR_001"); liveness fields
// are refreshed by ingestion, status by ingestion and the offline sweeper.
type Device struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ExternalID      string    `gorm:"uniqueIndex;not null;column:external_id" json:"external_id"`
	Name            string    `gorm:"column:name" json:"name"`
	Type            string    `gorm:"column:type;not null;default:'collar'" json:"type"`
	Model           string    `gorm:"column:model" json:"model"`
	FirmwareVersion string    `gorm:"column:firmware_version" json:"firmware_version"`
	HardwareVersion string    `gorm:"column:hardware_version" json:"hardware_version"`

	Status         string     `gorm:"column:status;not null;default:'inactive';index" json:"status"`
	BatteryLevel   *int       `gorm:"column:battery_level" json:"battery_level,omitempty"`
	SignalStrength *int       `gorm:"column:signal_strength" json:"signal_strength,omitempty"`
	LastOnlineAt   *time.Time `gorm:"column:last_online_at;index" json:"last_online_at,omitempty"`
	LastSyncAt     *time.Time `gorm:"column:last_sync_at" json:"last_sync_at,omitempty"`

	// bcrypt hash of the enrollment key handed out at provisioning.
	EnrollmentKeyHash string `gorm:"column:enrollment_key_hash;not null;default:''" json:"-"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Device) TableName() string { return "device" }
