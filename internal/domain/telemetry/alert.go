package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AlertType string

const (
	AlertTypeHealthAnomaly   AlertType = "health_anomaly"
	AlertTypeBatteryLow      AlertType = "battery_low"
	AlertTypeUnusualBehavior AlertType = "unusual_behavior"
	AlertTypeDeviceOffline   AlertType = "device_offline"
	AlertTypeTemperatureHigh AlertType = "temperature_high"
	AlertTypeTemperatureLow  AlertType = "temperature_low"
	AlertTypeHeartRateHigh   AlertType = "heart_rate_high"
	AlertTypeHeartRateLow    AlertType = "heart_rate_low"
)

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// HealthAlert is a derived notification. Ingestion-produced alerts always
// carry a SessionID; the offline sweeper produces device-scoped alerts with
// SessionID nil. Read/resolve state is mutated only by explicit user action.
type HealthAlert struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID *uuid.UUID `gorm:"type:uuid;index;column:session_id" json:"session_id,omitempty"`
	DeviceID  uuid.UUID  `gorm:"type:uuid;not null;index;column:device_id" json:"device_id"`
	PetID     *uuid.UUID `gorm:"type:uuid;index;column:pet_id" json:"pet_id,omitempty"`

	Type     string         `gorm:"column:type;not null;index" json:"type"`
	Severity string         `gorm:"column:severity;not null;index" json:"severity"`
	Message  string         `gorm:"column:message;type:text;not null" json:"message"`
	Data     datatypes.JSON `gorm:"type:jsonb;column:data;not null;default:'{}'" json:"data"`

	IsRead     bool       `gorm:"column:is_read;not null;default:false;index" json:"is_read"`
	IsResolved bool       `gorm:"column:is_resolved;not null;default:false;index" json:"is_resolved"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid;column:resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (HealthAlert) TableName() string { return "health_alert" }
