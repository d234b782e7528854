package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type HealthTrend string

const (
	HealthTrendStable        HealthTrend = "stable"
	HealthTrendImproving     HealthTrend = "improving"
	HealthTrendDeteriorating HealthTrend = "deteriorating"
)

func ValidHealthTrend(s string) bool {
	switch HealthTrend(s) {
	case HealthTrendStable, HealthTrendImproving, HealthTrendDeteriorating:
		return true
	}
	return false
}

// HealthAssessment is the device's on-board inference for one session.
// Scores are 1-10; AbnormalitiesDetected is a JSON array of label strings.
type HealthAssessment struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:session_id" json:"session_id"`

	OverallHealthScore    int            `gorm:"column:overall_health_score;not null" json:"overall_health_score"`
	VitalSignsStability   int            `gorm:"column:vital_signs_stability;not null" json:"vital_signs_stability"`
	AbnormalitiesDetected datatypes.JSON `gorm:"type:jsonb;column:abnormalities_detected;not null;default:'[]'" json:"abnormalities_detected"`
	TrendAnalysis         string         `gorm:"column:trend_analysis;not null" json:"trend_analysis"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (HealthAssessment) TableName() string { return "health_assessment" }

type BehaviorAnalysis struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:session_id" json:"session_id"`

	ActivityLevel           int    `gorm:"column:activity_level;not null" json:"activity_level"`
	MoodState               int    `gorm:"column:mood_state;not null" json:"mood_state"`
	BehaviorPattern         string `gorm:"column:behavior_pattern" json:"behavior_pattern"`
	UnusualBehaviorDetected bool   `gorm:"column:unusual_behavior_detected;not null;default:false" json:"unusual_behavior_detected"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BehaviorAnalysis) TableName() string { return "behavior_analysis" }
