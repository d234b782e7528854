// Package ingest holds the device upload schema, its validator, and the
// canonical payload mapper used by the analysis trigger. Everything here is
// pure; persistence happens in the aggregates layer.
package ingest

// Payload is the device upload body, field for field. The five top-level
// sections are required; media_analysis inside offline_inference is the
// only optional block.
type Payload struct {
	Metadata          *Metadata          `json:"metadata"`
	RawSensorData     *RawSensorData     `json:"raw_sensor_data"`
	OfflineInference  *OfflineInference  `json:"offline_inference"`
	SummaryStatistics *SummaryStatistics `json:"summary_statistics"`
	SystemStatus      *SystemStatus      `json:"system_status"`
}

type Metadata struct {
	DeviceID            string `json:"device_id"`
	SessionID           string `json:"session_id"`
	Timestamp           int64  `json:"timestamp"`
	FirmwareVersion     string `json:"firmware_version"`
	DataIntervalSeconds int    `json:"data_interval_seconds"`
	UploadReason        string `json:"upload_reason"`
}

type RawSensorData struct {
	VitalSignsSamples []VitalSignsSample `json:"vital_signs_samples"`
	MotionSamples     []MotionSample     `json:"motion_samples"`
}

type VitalSignsSample struct {
	TimestampOffset int64   `json:"timestamp_offset"`
	TemperatureC    float64 `json:"temperature_c"`
	HeartRateBPM    int     `json:"heart_rate_bpm"`
}

type MotionSample struct {
	TimestampOffset   int64        `json:"timestamp_offset"`
	Acceleration      Acceleration `json:"acceleration"`
	MovementIntensity float64      `json:"movement_intensity"`
}

type Acceleration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type OfflineInference struct {
	HealthAssessment HealthAssessment `json:"health_assessment"`
	BehaviorAnalysis BehaviorAnalysis `json:"behavior_analysis"`
	MediaAnalysis    *MediaAnalysis   `json:"media_analysis,omitempty"`
}

type HealthAssessment struct {
	OverallHealthScore    int      `json:"overall_health_score"`
	VitalSignsStability   int      `json:"vital_signs_stability"`
	AbnormalitiesDetected []string `json:"abnormalities_detected"`
	TrendAnalysis         string   `json:"trend_analysis"`
}

type BehaviorAnalysis struct {
	ActivityLevel           int    `json:"activity_level"`
	MoodState               int    `json:"mood_state"`
	BehaviorPattern         string `json:"behavior_pattern"`
	UnusualBehaviorDetected bool   `json:"unusual_behavior_detected"`
}

type MediaAnalysis struct {
	AudioEvents   []AudioEvent `json:"audio_events"`
	VideoAnalysis []VideoEvent `json:"video_analysis"`
}

type AudioEvent struct {
	TimestampOffset int64  `json:"timestamp_offset"`
	EventType       string `json:"event_type"`
	DurationMs      int    `json:"duration_ms"`
	EmotionalTone   string `json:"emotional_tone"`
}

type VideoEvent struct {
	TimestampOffset    int64  `json:"timestamp_offset"`
	MovementType       string `json:"movement_type"`
	EnvironmentChanges string `json:"environment_changes"`
}

type SummaryStatistics struct {
	TemperatureStats Stats `json:"temperature_stats"`
	HeartRateStats   Stats `json:"heart_rate_stats"`
}

type Stats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type SystemStatus struct {
	BatteryLevel       int `json:"battery_level"`
	MemoryUsagePercent int `json:"memory_usage_percent"`
	StorageAvailableMB int `json:"storage_available_mb"`
}
