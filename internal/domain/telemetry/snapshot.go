package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SummaryStatistics struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:session_id" json:"session_id"`

	TemperatureMean float64 `gorm:"column:temperature_mean;not null" json:"temperature_mean"`
	TemperatureMin  float64 `gorm:"column:temperature_min;not null" json:"temperature_min"`
	TemperatureMax  float64 `gorm:"column:temperature_max;not null" json:"temperature_max"`

	HeartRateMean float64 `gorm:"column:heart_rate_mean;not null" json:"heart_rate_mean"`
	HeartRateMin  float64 `gorm:"column:heart_rate_min;not null" json:"heart_rate_min"`
	HeartRateMax  float64 `gorm:"column:heart_rate_max;not null" json:"heart_rate_max"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SummaryStatistics) TableName() string { return "summary_statistics" }

// SystemStatus is the device's own telemetry snapshot for the session; the
// battery level here also feeds the device row and the battery_low rule.
type SystemStatus struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:session_id" json:"session_id"`

	BatteryLevel       int `gorm:"column:battery_level;not null" json:"battery_level"`
	MemoryUsagePercent int `gorm:"column:memory_usage_percent;not null" json:"memory_usage_percent"`
	StorageAvailableMB int `gorm:"column:storage_available_mb;not null" json:"storage_available_mb"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SystemStatus) TableName() string { return "system_status" }
