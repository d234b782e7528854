package ingest

import (
	"fmt"
	"strings"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field constraint, not just the
// first one, so the device firmware team sees the whole picture at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "payload validation failed: " + strings.Join(parts, "; ")
}

type violations struct {
	fields []FieldError
}

func (v *violations) add(field, format string, args ...interface{}) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the decoded payload against the upload schema and returns
// nil or a *ValidationError. It runs before any identity or persistence
// work and touches nothing outside the payload.
func Validate(p *Payload) error {
	v := &violations{}

	if p.Metadata == nil {
		v.add("metadata", "is required")
	} else {
		validateMetadata(v, p.Metadata)
	}

	if p.RawSensorData == nil {
		v.add("raw_sensor_data", "is required")
	} else {
		validateRawSensorData(v, p.RawSensorData)
	}

	if p.OfflineInference == nil {
		v.add("offline_inference", "is required")
	} else {
		validateOfflineInference(v, p.OfflineInference)
	}

	if p.SummaryStatistics == nil {
		v.add("summary_statistics", "is required")
	}

	if p.SystemStatus == nil {
		v.add("system_status", "is required")
	} else {
		validateSystemStatus(v, p.SystemStatus)
	}

	if len(v.fields) > 0 {
		return &ValidationError{Fields: v.fields}
	}
	return nil
}

func validateMetadata(v *violations, m *Metadata) {
	if strings.TrimSpace(m.DeviceID) == "" {
		v.add("metadata.device_id", "is required")
	}
	if strings.TrimSpace(m.SessionID) == "" {
		v.add("metadata.session_id", "is required")
	}
	if m.Timestamp <= 0 {
		v.add("metadata.timestamp", "must be a positive epoch timestamp in milliseconds")
	}
	if m.DataIntervalSeconds <= 0 {
		v.add("metadata.data_interval_seconds", "must be a positive integer")
	}
	if !telemetry.ValidUploadReason(m.UploadReason) {
		v.add("metadata.upload_reason", "must be one of scheduled_upload, event_triggered, manual")
	}
}

func validateRawSensorData(v *violations, r *RawSensorData) {
	for i, s := range r.VitalSignsSamples {
		if s.TimestampOffset < 0 {
			v.add(fmt.Sprintf("raw_sensor_data.vital_signs_samples[%d].timestamp_offset", i), "must not be negative")
		}
		if s.HeartRateBPM <= 0 {
			v.add(fmt.Sprintf("raw_sensor_data.vital_signs_samples[%d].heart_rate_bpm", i), "must be a positive integer")
		}
	}
	for i, s := range r.MotionSamples {
		if s.TimestampOffset < 0 {
			v.add(fmt.Sprintf("raw_sensor_data.motion_samples[%d].timestamp_offset", i), "must not be negative")
		}
		if s.MovementIntensity < 0 || s.MovementIntensity > 1 {
			v.add(fmt.Sprintf("raw_sensor_data.motion_samples[%d].movement_intensity", i), "must be between 0 and 1")
		}
	}
}

func validateOfflineInference(v *violations, o *OfflineInference) {
	validateScore(v, "offline_inference.health_assessment.overall_health_score", o.HealthAssessment.OverallHealthScore)
	validateScore(v, "offline_inference.health_assessment.vital_signs_stability", o.HealthAssessment.VitalSignsStability)
	if !telemetry.ValidHealthTrend(o.HealthAssessment.TrendAnalysis) {
		v.add("offline_inference.health_assessment.trend_analysis", "must be one of stable, improving, deteriorating")
	}

	validateScore(v, "offline_inference.behavior_analysis.activity_level", o.BehaviorAnalysis.ActivityLevel)
	validateScore(v, "offline_inference.behavior_analysis.mood_state", o.BehaviorAnalysis.MoodState)

	if o.MediaAnalysis != nil {
		for i, e := range o.MediaAnalysis.AudioEvents {
			if e.TimestampOffset < 0 {
				v.add(fmt.Sprintf("offline_inference.media_analysis.audio_events[%d].timestamp_offset", i), "must not be negative")
			}
			if e.DurationMs < 0 {
				v.add(fmt.Sprintf("offline_inference.media_analysis.audio_events[%d].duration_ms", i), "must not be negative")
			}
		}
		for i, e := range o.MediaAnalysis.VideoAnalysis {
			if e.TimestampOffset < 0 {
				v.add(fmt.Sprintf("offline_inference.media_analysis.video_analysis[%d].timestamp_offset", i), "must not be negative")
			}
		}
	}
}

func validateSystemStatus(v *violations, s *SystemStatus) {
	validatePercent(v, "system_status.battery_level", s.BatteryLevel)
	validatePercent(v, "system_status.memory_usage_percent", s.MemoryUsagePercent)
	if s.StorageAvailableMB < 0 {
		v.add("system_status.storage_available_mb", "must not be negative")
	}
}

func validateScore(v *violations, field string, score int) {
	if score < 1 || score > 10 {
		v.add(field, "must be an integer between 1 and 10")
	}
}

func validatePercent(v *violations, field string, pct int) {
	if pct < 0 || pct > 100 {
		v.add(field, "must be between 0 and 100")
	}
}
