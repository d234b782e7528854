package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaAnalysis exists only for sessions that reported at least one audio or
// video event; sessions without media get no row at all.
type MediaAnalysis struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:session_id" json:"session_id"`

	AudioEventCount int `gorm:"column:audio_event_count;not null;default:0" json:"audio_event_count"`
	VideoEventCount int `gorm:"column:video_event_count;not null;default:0" json:"video_event_count"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MediaAnalysis) TableName() string { return "media_analysis" }

type AudioEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MediaAnalysisID uuid.UUID `gorm:"type:uuid;not null;index;column:media_analysis_id" json:"media_analysis_id"`

	TimestampOffset int    `gorm:"column:timestamp_offset;not null" json:"timestamp_offset"`
	EventType       string `gorm:"column:event_type;not null" json:"event_type"`
	DurationMs      int    `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	EmotionalTone   string `gorm:"column:emotional_tone" json:"emotional_tone"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AudioEvent) TableName() string { return "audio_event" }

type VideoEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MediaAnalysisID uuid.UUID `gorm:"type:uuid;not null;index;column:media_analysis_id" json:"media_analysis_id"`

	TimestampOffset    int    `gorm:"column:timestamp_offset;not null" json:"timestamp_offset"`
	MovementType       string `gorm:"column:movement_type;not null" json:"movement_type"`
	EnvironmentChanges string `gorm:"column:environment_changes" json:"environment_changes"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (VideoEvent) TableName() string { return "video_event" }
