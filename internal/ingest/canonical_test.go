package ingest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

func fullAggregate() *telemetry.SessionAggregate {
	sessionID := uuid.New()
	mediaID := uuid.New()
	return &telemetry.SessionAggregate{
		Session: &telemetry.SensorDataSession{
			ID:                  sessionID,
			DeviceID:            uuid.New(),
			SessionID:           "sess_20240715143000",
			RecordedAt:          time.UnixMilli(1721054280000).UTC(),
			FirmwareVersion:     "2.1.3",
			DataIntervalSeconds: 30,
			UploadReason:        "scheduled_upload",
		},
		Vitals: []*telemetry.VitalSignsSample{
			{SessionID: sessionID, TimestampOffset: 0, TemperatureC: 38.2, HeartRateBPM: 88},
			{SessionID: sessionID, TimestampOffset: 30000, TemperatureC: 38.4, HeartRateBPM: 92},
		},
		Motion: []*telemetry.MotionSample{
			{SessionID: sessionID, TimestampOffset: 0, AccelerationX: 0.1, AccelerationY: 0.2, AccelerationZ: 9.8, MovementIntensity: 0.4},
		},
		Assessment: &telemetry.HealthAssessment{
			SessionID:             sessionID,
			OverallHealthScore:    8,
			VitalSignsStability:   7,
			AbnormalitiesDetected: datatypes.JSON([]byte(`["elevated_heart_rate"]`)),
			TrendAnalysis:         "stable",
		},
		Behavior: &telemetry.BehaviorAnalysis{
			SessionID:               sessionID,
			ActivityLevel:           6,
			MoodState:               7,
			BehaviorPattern:         "playful",
			UnusualBehaviorDetected: true,
		},
		Media: &telemetry.MediaAnalysis{ID: mediaID, SessionID: sessionID, AudioEventCount: 1, VideoEventCount: 1},
		AudioEvents: []*telemetry.AudioEvent{
			{MediaAnalysisID: mediaID, TimestampOffset: 12000, EventType: "bark", DurationMs: 800, EmotionalTone: "excited"},
		},
		VideoEvents: []*telemetry.VideoEvent{
			{MediaAnalysisID: mediaID, TimestampOffset: 15000, MovementType: "running", EnvironmentChanges: "none"},
		},
		Summary: &telemetry.SummaryStatistics{
			SessionID:       sessionID,
			TemperatureMean: 38.3,
			TemperatureMin:  38.2,
			TemperatureMax:  38.4,
			HeartRateMean:   90,
			HeartRateMin:    88,
			HeartRateMax:    92,
		},
		Status: &telemetry.SystemStatus{
			SessionID:          sessionID,
			BatteryLevel:       78,
			MemoryUsagePercent: 45,
			StorageAvailableMB: 1024,
		},
	}
}

func TestCanonical_FullAggregate(t *testing.T) {
	p := Canonical(fullAggregate(), "PET_MONITOR_001", DefaultCanonical)

	if p.Metadata.DeviceID != "PET_MONITOR_001" || p.Metadata.SessionID != "sess_20240715143000" {
		t.Fatalf("metadata: %+v", p.Metadata)
	}
	if p.Metadata.Timestamp != 1721054280000 {
		t.Fatalf("timestamp: %d", p.Metadata.Timestamp)
	}
	if p.Metadata.FirmwareVersion != "2.1.3" || p.Metadata.UploadReason != "scheduled_upload" {
		t.Fatalf("metadata passthrough: %+v", p.Metadata)
	}

	if len(p.RawSensorData.VitalSignsSamples) != 2 || p.RawSensorData.VitalSignsSamples[1].HeartRateBPM != 92 {
		t.Fatalf("vitals: %+v", p.RawSensorData.VitalSignsSamples)
	}
	if len(p.RawSensorData.MotionSamples) != 1 || p.RawSensorData.MotionSamples[0].Acceleration.Z != 9.8 {
		t.Fatalf("motion: %+v", p.RawSensorData.MotionSamples)
	}

	ha := p.OfflineInference.HealthAssessment
	if ha.OverallHealthScore != 8 || len(ha.AbnormalitiesDetected) != 1 || ha.AbnormalitiesDetected[0] != "elevated_heart_rate" {
		t.Fatalf("assessment: %+v", ha)
	}
	if !p.OfflineInference.BehaviorAnalysis.UnusualBehaviorDetected {
		t.Fatalf("behavior: %+v", p.OfflineInference.BehaviorAnalysis)
	}
	if p.OfflineInference.MediaAnalysis == nil ||
		len(p.OfflineInference.MediaAnalysis.AudioEvents) != 1 ||
		len(p.OfflineInference.MediaAnalysis.VideoAnalysis) != 1 {
		t.Fatalf("media: %+v", p.OfflineInference.MediaAnalysis)
	}

	if p.SummaryStatistics.HeartRateStats.Max != 92 || p.SummaryStatistics.TemperatureStats.Mean != 38.3 {
		t.Fatalf("summary: %+v", p.SummaryStatistics)
	}
	if p.SystemStatus.BatteryLevel != 78 {
		t.Fatalf("status: %+v", p.SystemStatus)
	}

	// The rebuilt payload passes the same validation as a device upload.
	if err := Validate(p); err != nil {
		t.Fatalf("Validate(canonical): %v", err)
	}
}

func TestCanonical_MinimalAggregateUsesDefaults(t *testing.T) {
	agg := &telemetry.SessionAggregate{
		Session: &telemetry.SensorDataSession{
			ID:         uuid.New(),
			DeviceID:   uuid.New(),
			SessionID:  "sess_minimal",
			RecordedAt: time.UnixMilli(1721054280000).UTC(),
		},
	}

	p := Canonical(agg, "PET_MONITOR_002", DefaultCanonical)

	if p.Metadata.FirmwareVersion != DefaultCanonical.FirmwareVersion {
		t.Fatalf("firmware default: %q", p.Metadata.FirmwareVersion)
	}
	if p.Metadata.DataIntervalSeconds != DefaultCanonical.DataIntervalSeconds {
		t.Fatalf("interval default: %d", p.Metadata.DataIntervalSeconds)
	}
	if p.Metadata.UploadReason != DefaultCanonical.UploadReason {
		t.Fatalf("upload reason default: %q", p.Metadata.UploadReason)
	}

	if len(p.RawSensorData.VitalSignsSamples) != 0 || len(p.RawSensorData.MotionSamples) != 0 {
		t.Fatalf("samples: %+v", p.RawSensorData)
	}

	ha := p.OfflineInference.HealthAssessment
	if ha.OverallHealthScore != DefaultCanonical.OverallHealthScore || ha.TrendAnalysis != DefaultCanonical.TrendAnalysis {
		t.Fatalf("assessment defaults: %+v", ha)
	}
	if ha.AbnormalitiesDetected == nil || len(ha.AbnormalitiesDetected) != 0 {
		t.Fatalf("abnormalities default: %#v", ha.AbnormalitiesDetected)
	}
	ba := p.OfflineInference.BehaviorAnalysis
	if ba.ActivityLevel != DefaultCanonical.ActivityLevel || ba.BehaviorPattern != DefaultCanonical.BehaviorPattern {
		t.Fatalf("behavior defaults: %+v", ba)
	}
	if ba.UnusualBehaviorDetected {
		t.Fatalf("behavior defaults: %+v", ba)
	}
	if p.OfflineInference.MediaAnalysis != nil {
		t.Fatalf("media should stay absent: %+v", p.OfflineInference.MediaAnalysis)
	}

	if p.SystemStatus.BatteryLevel != DefaultCanonical.BatteryLevel {
		t.Fatalf("battery default: %d", p.SystemStatus.BatteryLevel)
	}

	if err := Validate(p); err != nil {
		t.Fatalf("Validate(minimal canonical): %v", err)
	}
}
