package ingest

import (
	"encoding/json"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

// CanonicalDefaults is the single place optional fields fall back when a
// persisted session is missing a record. Values live here, not inline in
// the mapping, so the fallback behavior is testable on its own.
type CanonicalDefaults struct {
	FirmwareVersion     string
	DataIntervalSeconds int
	UploadReason        string

	OverallHealthScore  int
	VitalSignsStability int
	TrendAnalysis       string

	ActivityLevel   int
	MoodState       int
	BehaviorPattern string

	BatteryLevel       int
	MemoryUsagePercent int
	StorageAvailableMB int
}

// DefaultCanonical mirrors what a healthy device reports when it has
// nothing to say: neutral scores, stable trend, resting behavior.
var DefaultCanonical = CanonicalDefaults{
	FirmwareVersion:     "unknown",
	DataIntervalSeconds: 30,
	UploadReason:        string(telemetry.UploadReasonScheduled),

	OverallHealthScore:  5,
	VitalSignsStability: 5,
	TrendAnalysis:       string(telemetry.HealthTrendStable),

	ActivityLevel:   5,
	MoodState:       5,
	BehaviorPattern: "resting",

	BatteryLevel:       100,
	MemoryUsagePercent: 0,
	StorageAvailableMB: 0,
}

// Canonical rebuilds the analysis request payload from persisted rows. The
// result has the upload shape but never comes from the original wire bytes:
// the analysis collaborator sees exactly what the store retained.
func Canonical(agg *telemetry.SessionAggregate, deviceExternalID string, defs CanonicalDefaults) *Payload {
	s := agg.Session

	p := &Payload{
		Metadata: &Metadata{
			DeviceID:            deviceExternalID,
			SessionID:           s.SessionID,
			Timestamp:           s.RecordedAt.UnixMilli(),
			FirmwareVersion:     fallbackString(s.FirmwareVersion, defs.FirmwareVersion),
			DataIntervalSeconds: fallbackInt(s.DataIntervalSeconds, defs.DataIntervalSeconds),
			UploadReason:        fallbackString(s.UploadReason, defs.UploadReason),
		},
		RawSensorData: &RawSensorData{
			VitalSignsSamples: make([]VitalSignsSample, 0, len(agg.Vitals)),
			MotionSamples:     make([]MotionSample, 0, len(agg.Motion)),
		},
		OfflineInference:  &OfflineInference{},
		SummaryStatistics: &SummaryStatistics{},
		SystemStatus:      &SystemStatus{},
	}

	for _, vs := range agg.Vitals {
		p.RawSensorData.VitalSignsSamples = append(p.RawSensorData.VitalSignsSamples, VitalSignsSample{
			TimestampOffset: int64(vs.TimestampOffset),
			TemperatureC:    vs.TemperatureC,
			HeartRateBPM:    vs.HeartRateBPM,
		})
	}
	for _, ms := range agg.Motion {
		p.RawSensorData.MotionSamples = append(p.RawSensorData.MotionSamples, MotionSample{
			TimestampOffset:   int64(ms.TimestampOffset),
			Acceleration:      Acceleration{X: ms.AccelerationX, Y: ms.AccelerationY, Z: ms.AccelerationZ},
			MovementIntensity: ms.MovementIntensity,
		})
	}

	p.OfflineInference.HealthAssessment = canonicalAssessment(agg.Assessment, defs)
	p.OfflineInference.BehaviorAnalysis = canonicalBehavior(agg.Behavior, defs)
	p.OfflineInference.MediaAnalysis = canonicalMedia(agg)

	if agg.Summary != nil {
		p.SummaryStatistics.TemperatureStats = Stats{
			Mean: agg.Summary.TemperatureMean,
			Min:  agg.Summary.TemperatureMin,
			Max:  agg.Summary.TemperatureMax,
		}
		p.SummaryStatistics.HeartRateStats = Stats{
			Mean: agg.Summary.HeartRateMean,
			Min:  agg.Summary.HeartRateMin,
			Max:  agg.Summary.HeartRateMax,
		}
	}

	if agg.Status != nil {
		p.SystemStatus.BatteryLevel = agg.Status.BatteryLevel
		p.SystemStatus.MemoryUsagePercent = agg.Status.MemoryUsagePercent
		p.SystemStatus.StorageAvailableMB = agg.Status.StorageAvailableMB
	} else {
		p.SystemStatus.BatteryLevel = defs.BatteryLevel
		p.SystemStatus.MemoryUsagePercent = defs.MemoryUsagePercent
		p.SystemStatus.StorageAvailableMB = defs.StorageAvailableMB
	}

	return p
}

func canonicalAssessment(a *telemetry.HealthAssessment, defs CanonicalDefaults) HealthAssessment {
	if a == nil {
		return HealthAssessment{
			OverallHealthScore:    defs.OverallHealthScore,
			VitalSignsStability:   defs.VitalSignsStability,
			AbnormalitiesDetected: []string{},
			TrendAnalysis:         defs.TrendAnalysis,
		}
	}
	labels := []string{}
	if len(a.AbnormalitiesDetected) > 0 {
		// Stored as a jsonb array; a row written through ingestion always
		// holds a valid one.
		_ = json.Unmarshal(a.AbnormalitiesDetected, &labels)
	}
	return HealthAssessment{
		OverallHealthScore:    fallbackInt(a.OverallHealthScore, defs.OverallHealthScore),
		VitalSignsStability:   fallbackInt(a.VitalSignsStability, defs.VitalSignsStability),
		AbnormalitiesDetected: labels,
		TrendAnalysis:         fallbackString(a.TrendAnalysis, defs.TrendAnalysis),
	}
}

func canonicalBehavior(b *telemetry.BehaviorAnalysis, defs CanonicalDefaults) BehaviorAnalysis {
	if b == nil {
		return BehaviorAnalysis{
			ActivityLevel:   defs.ActivityLevel,
			MoodState:       defs.MoodState,
			BehaviorPattern: defs.BehaviorPattern,
		}
	}
	return BehaviorAnalysis{
		ActivityLevel:           fallbackInt(b.ActivityLevel, defs.ActivityLevel),
		MoodState:               fallbackInt(b.MoodState, defs.MoodState),
		BehaviorPattern:         fallbackString(b.BehaviorPattern, defs.BehaviorPattern),
		UnusualBehaviorDetected: b.UnusualBehaviorDetected,
	}
}

func canonicalMedia(agg *telemetry.SessionAggregate) *MediaAnalysis {
	if agg.Media == nil {
		return nil
	}
	media := &MediaAnalysis{
		AudioEvents:   make([]AudioEvent, 0, len(agg.AudioEvents)),
		VideoAnalysis: make([]VideoEvent, 0, len(agg.VideoEvents)),
	}
	for _, e := range agg.AudioEvents {
		media.AudioEvents = append(media.AudioEvents, AudioEvent{
			TimestampOffset: int64(e.TimestampOffset),
			EventType:       e.EventType,
			DurationMs:      e.DurationMs,
			EmotionalTone:   e.EmotionalTone,
		})
	}
	for _, e := range agg.VideoEvents {
		media.VideoAnalysis = append(media.VideoAnalysis, VideoEvent{
			TimestampOffset:    int64(e.TimestampOffset),
			MovementType:       e.MovementType,
			EnvironmentChanges: e.EnvironmentChanges,
		})
	}
	return media
}

func fallbackString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fallbackInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
