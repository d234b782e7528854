package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SensorAnalysis caches the external enrichment result for one session.
// At most one live row per session: guarded by a partial unique index on
// session_id plus an existence check before create, so concurrent triggers
// collapse onto the first writer.
type SensorAnalysis struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID  `gorm:"type:uuid;not null;index;column:session_id" json:"session_id"`
	DeviceID  uuid.UUID  `gorm:"type:uuid;not null;index;column:device_id" json:"device_id"`
	PetID     *uuid.UUID `gorm:"type:uuid;index;column:pet_id" json:"pet_id,omitempty"`

	Metrics     datatypes.JSON `gorm:"type:jsonb;column:metrics;not null;default:'{}'" json:"metrics"`
	MetricsMeta datatypes.JSON `gorm:"type:jsonb;column:metrics_meta" json:"metrics_meta,omitempty"`
	Insights    datatypes.JSON `gorm:"type:jsonb;column:insights;not null;default:'{}'" json:"insights"`

	// Confidence is rounded to 2 decimals before persisting.
	Confidence float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Model      string         `gorm:"column:model;not null" json:"model"`
	Options    datatypes.JSON `gorm:"type:jsonb;column:options;not null;default:'{}'" json:"options"`
	SafetyNote string         `gorm:"column:safety_note;type:text" json:"safety_note,omitempty"`

	AnalyzedAt time.Time `gorm:"column:analyzed_at;not null;default:now()" json:"analyzed_at"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SensorAnalysis) TableName() string { return "sensor_analysis" }
