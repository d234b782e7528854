package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadReason string

const (
	UploadReasonScheduled      UploadReason = "scheduled_upload"
	UploadReasonEventTriggered UploadReason = "event_triggered"
	UploadReasonManual         UploadReason = "manual"
)

func ValidUploadReason(s string) bool {
	switch UploadReason(s) {
	case UploadReasonScheduled, UploadReasonEventTriggered, UploadReasonManual:
		return true
	}
	return false
}

// SensorDataSession is one upload batch from a device. SessionID is supplied
// by the device and globally unique; a duplicate submission is rejected, not
// upserted. Rows are immutable once the ingestion transaction commits.
type SensorDataSession struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DeviceID uuid.UUID `gorm:"type:uuid;not null;index;column:device_id" json:"device_id"`

	SessionID           string    `gorm:"uniqueIndex;not null;column:session_id" json:"session_id"`
	RecordedAt          time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
	FirmwareVersion     string    `gorm:"column:firmware_version" json:"firmware_version"`
	DataIntervalSeconds int       `gorm:"column:data_interval_seconds;not null;default:0" json:"data_interval_seconds"`
	UploadReason        string    `gorm:"column:upload_reason;not null;index" json:"upload_reason"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SensorDataSession) TableName() string { return "sensor_data_session" }
