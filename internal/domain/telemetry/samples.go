package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sample rows are bulk-inserted at ingestion and never updated, so they only
// carry CreatedAt. TimestampOffset is milliseconds from the session's
// RecordedAt.

type VitalSignsSample struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;column:session_id" json:"session_id"`

	TimestampOffset int     `gorm:"column:timestamp_offset;not null" json:"timestamp_offset"`
	TemperatureC    float64 `gorm:"column:temperature_c;not null" json:"temperature_c"`
	HeartRateBPM    int     `gorm:"column:heart_rate_bpm;not null" json:"heart_rate_bpm"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (VitalSignsSample) TableName() string { return "vital_signs_sample" }

type MotionSample struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;column:session_id" json:"session_id"`

	TimestampOffset   int     `gorm:"column:timestamp_offset;not null" json:"timestamp_offset"`
	AccelerationX     float64 `gorm:"column:acceleration_x;not null" json:"acceleration_x"`
	AccelerationY     float64 `gorm:"column:acceleration_y;not null" json:"acceleration_y"`
	AccelerationZ     float64 `gorm:"column:acceleration_z;not null" json:"acceleration_z"`
	MovementIntensity float64 `gorm:"column:movement_intensity;not null" json:"movement_intensity"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MotionSample) TableName() string { return "motion_sample" }
