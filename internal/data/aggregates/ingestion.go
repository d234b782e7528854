package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/ingest/alertrules"
	"github.com/pawsense/pawsense-backend/internal/platform/dbctx"
)

type IngestionAggregateDeps struct {
	Base BaseDeps

	Rules alertrules.Config

	Devices  repos.DeviceRepo
	Bindings repos.BindingRepo
	Sessions repos.SessionRepo
	Records  repos.RecordRepo
	Alerts   repos.AlertRepo
}

type ingestionAggregate struct {
	deps IngestionAggregateDeps
}

func NewIngestionAggregate(deps IngestionAggregateDeps) domainagg.IngestionAggregate {
	deps.Base = deps.Base.normalize()
	return &ingestionAggregate{deps: deps}
}

func (a *ingestionAggregate) Contract() domainagg.Contract {
	return domainagg.IngestionAggregateContract
}

// IngestSession persists one upload batch atomically: the session row, every
// child record, the device liveness refresh, and all derived alerts commit
// together or not at all. The device row lock serializes concurrent uploads
// from the same device; the unique index on session_id backstops duplicates
// that race past the in-transaction existence check.
func (a *ingestionAggregate) IngestSession(ctx context.Context, in domainagg.IngestSessionInput) (domainagg.IngestSessionResult, error) {
	const op = "Telemetry.Ingestion.IngestSession"
	var out domainagg.IngestSessionResult
	if in.Payload == nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing payload", nil)
	}
	if a.deps.Devices == nil || a.deps.Bindings == nil || a.deps.Sessions == nil || a.deps.Records == nil || a.deps.Alerts == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "ingestion aggregate repos not configured", nil)
	}

	p := in.Payload
	if p.Metadata == nil || p.RawSensorData == nil || p.OfflineInference == nil || p.SummaryStatistics == nil || p.SystemStatus == nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "payload sections missing; validate before ingesting", nil)
	}
	meta := p.Metadata

	authID := strings.TrimSpace(in.AuthDeviceExternalID)
	if authID != "" && authID != strings.TrimSpace(meta.DeviceID) {
		return out, domainagg.NewError(domainagg.CodeIdentityMismatch, op, "authenticated device does not match payload device", nil)
	}

	receivedAt := in.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		device, err := a.deps.Devices.LockByExternalID(dbc.Ctx, dbc.Tx, meta.DeviceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("device not found: %s", meta.DeviceID), nil)
			}
			return err
		}

		existing, err := a.deps.Sessions.GetBySessionID(dbc.Ctx, dbc.Tx, meta.SessionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return domainagg.NewErrorWithDetails(domainagg.CodeConflict, op,
				fmt.Sprintf("session already ingested: %s", meta.SessionID),
				map[string]interface{}{domainagg.DetailExistingSessionID: existing.ID.String()}, nil)
		}

		session := &telemetry.SensorDataSession{
			ID:                  uuid.New(),
			DeviceID:            device.ID,
			SessionID:           meta.SessionID,
			RecordedAt:          time.UnixMilli(meta.Timestamp).UTC(),
			FirmwareVersion:     meta.FirmwareVersion,
			DataIntervalSeconds: meta.DataIntervalSeconds,
			UploadReason:        meta.UploadReason,
		}

		// Prior battery is read before this session's status row exists so the
		// battery_low rule sees the level the device last reported.
		priorStatus, err := a.deps.Records.LatestSystemStatusBefore(dbc.Ctx, dbc.Tx, device.ID, session.ID)
		if err != nil {
			return err
		}
		var priorBattery *int
		if priorStatus != nil {
			priorBattery = &priorStatus.BatteryLevel
		}

		if _, err := a.deps.Sessions.Create(dbc.Ctx, dbc.Tx, session); err != nil {
			return err
		}
		if err := a.createChildRecords(dbc, session.ID, p); err != nil {
			return err
		}

		if err := a.deps.Devices.MarkSynced(dbc.Ctx, dbc.Tx, device.ID, p.SystemStatus.BatteryLevel, receivedAt); err != nil {
			return err
		}

		var petID *uuid.UUID
		binding, err := a.deps.Bindings.GetActiveByDeviceID(dbc.Ctx, dbc.Tx, device.ID)
		if err != nil {
			return err
		}
		if binding != nil {
			id := binding.PetID
			petID = &id
		}

		specs := alertrules.Evaluate(a.deps.Rules, p, priorBattery)
		alerts := make([]*telemetry.HealthAlert, 0, len(specs))
		for _, spec := range specs {
			data, err := json.Marshal(spec.Data)
			if err != nil {
				return fmt.Errorf("marshal alert data: %w", err)
			}
			sessionID := session.ID
			alerts = append(alerts, &telemetry.HealthAlert{
				SessionID: &sessionID,
				DeviceID:  device.ID,
				PetID:     petID,
				Type:      string(spec.Type),
				Severity:  string(spec.Severity),
				Message:   spec.Message,
				Data:      datatypes.JSON(data),
			})
		}
		if err := a.deps.Alerts.CreateMany(dbc.Ctx, dbc.Tx, alerts); err != nil {
			return err
		}

		out = domainagg.IngestSessionResult{
			SessionID:   session.ID,
			DeviceID:    device.ID,
			PetID:       petID,
			AlertsCount: len(alerts),
			RecordedAt:  session.RecordedAt,
		}
		return nil
	})
	return out, err
}

func (a *ingestionAggregate) createChildRecords(dbc dbctx.Context, sessionID uuid.UUID, p *ingest.Payload) error {
	vitals := make([]*telemetry.VitalSignsSample, 0, len(p.RawSensorData.VitalSignsSamples))
	for _, s := range p.RawSensorData.VitalSignsSamples {
		vitals = append(vitals, &telemetry.VitalSignsSample{
			SessionID:       sessionID,
			TimestampOffset: int(s.TimestampOffset),
			TemperatureC:    s.TemperatureC,
			HeartRateBPM:    s.HeartRateBPM,
		})
	}
	if err := a.deps.Records.CreateVitalSamples(dbc.Ctx, dbc.Tx, vitals); err != nil {
		return err
	}

	motion := make([]*telemetry.MotionSample, 0, len(p.RawSensorData.MotionSamples))
	for _, s := range p.RawSensorData.MotionSamples {
		motion = append(motion, &telemetry.MotionSample{
			SessionID:         sessionID,
			TimestampOffset:   int(s.TimestampOffset),
			AccelerationX:     s.Acceleration.X,
			AccelerationY:     s.Acceleration.Y,
			AccelerationZ:     s.Acceleration.Z,
			MovementIntensity: s.MovementIntensity,
		})
	}
	if err := a.deps.Records.CreateMotionSamples(dbc.Ctx, dbc.Tx, motion); err != nil {
		return err
	}

	ha := p.OfflineInference.HealthAssessment
	labels := ha.AbnormalitiesDetected
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal abnormalities: %w", err)
	}
	if _, err := a.deps.Records.CreateHealthAssessment(dbc.Ctx, dbc.Tx, &telemetry.HealthAssessment{
		SessionID:             sessionID,
		OverallHealthScore:    ha.OverallHealthScore,
		VitalSignsStability:   ha.VitalSignsStability,
		AbnormalitiesDetected: datatypes.JSON(labelsJSON),
		TrendAnalysis:         ha.TrendAnalysis,
	}); err != nil {
		return err
	}

	ba := p.OfflineInference.BehaviorAnalysis
	if _, err := a.deps.Records.CreateBehaviorAnalysis(dbc.Ctx, dbc.Tx, &telemetry.BehaviorAnalysis{
		SessionID:               sessionID,
		ActivityLevel:           ba.ActivityLevel,
		MoodState:               ba.MoodState,
		BehaviorPattern:         ba.BehaviorPattern,
		UnusualBehaviorDetected: ba.UnusualBehaviorDetected,
	}); err != nil {
		return err
	}

	if err := a.createMediaRecords(dbc, sessionID, p.OfflineInference.MediaAnalysis); err != nil {
		return err
	}

	stats := p.SummaryStatistics
	if _, err := a.deps.Records.CreateSummaryStatistics(dbc.Ctx, dbc.Tx, &telemetry.SummaryStatistics{
		SessionID:       sessionID,
		TemperatureMean: stats.TemperatureStats.Mean,
		TemperatureMin:  stats.TemperatureStats.Min,
		TemperatureMax:  stats.TemperatureStats.Max,
		HeartRateMean:   stats.HeartRateStats.Mean,
		HeartRateMin:    stats.HeartRateStats.Min,
		HeartRateMax:    stats.HeartRateStats.Max,
	}); err != nil {
		return err
	}

	if _, err := a.deps.Records.CreateSystemStatus(dbc.Ctx, dbc.Tx, &telemetry.SystemStatus{
		SessionID:          sessionID,
		BatteryLevel:       p.SystemStatus.BatteryLevel,
		MemoryUsagePercent: p.SystemStatus.MemoryUsagePercent,
		StorageAvailableMB: p.SystemStatus.StorageAvailableMB,
	}); err != nil {
		return err
	}
	return nil
}

// createMediaRecords writes the media_analysis row and its events. Sessions
// without any audio or video events get no media row at all.
func (a *ingestionAggregate) createMediaRecords(dbc dbctx.Context, sessionID uuid.UUID, media *ingest.MediaAnalysis) error {
	if media == nil || (len(media.AudioEvents) == 0 && len(media.VideoAnalysis) == 0) {
		return nil
	}

	row, err := a.deps.Records.CreateMediaAnalysis(dbc.Ctx, dbc.Tx, &telemetry.MediaAnalysis{
		SessionID:       sessionID,
		AudioEventCount: len(media.AudioEvents),
		VideoEventCount: len(media.VideoAnalysis),
	})
	if err != nil {
		return err
	}

	audio := make([]*telemetry.AudioEvent, 0, len(media.AudioEvents))
	for _, ev := range media.AudioEvents {
		audio = append(audio, &telemetry.AudioEvent{
			MediaAnalysisID: row.ID,
			TimestampOffset: int(ev.TimestampOffset),
			EventType:       ev.EventType,
			DurationMs:      ev.DurationMs,
			EmotionalTone:   ev.EmotionalTone,
		})
	}
	if err := a.deps.Records.CreateAudioEvents(dbc.Ctx, dbc.Tx, audio); err != nil {
		return err
	}

	video := make([]*telemetry.VideoEvent, 0, len(media.VideoAnalysis))
	for _, ev := range media.VideoAnalysis {
		video = append(video, &telemetry.VideoEvent{
			MediaAnalysisID:    row.ID,
			TimestampOffset:    int(ev.TimestampOffset),
			MovementType:       ev.MovementType,
			EnvironmentChanges: ev.EnvironmentChanges,
		})
	}
	return a.deps.Records.CreateVideoEvents(dbc.Ctx, dbc.Tx, video)
}
