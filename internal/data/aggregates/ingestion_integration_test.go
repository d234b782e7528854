package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	registryrepos "github.com/pawsense/pawsense-backend/internal/data/repos/registry"
	telemetryrepos "github.com/pawsense/pawsense-backend/internal/data/repos/telemetry"
	repotest "github.com/pawsense/pawsense-backend/internal/data/repos/testutil"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/ingest/alertrules"
)

type ingestionFixture struct {
	agg      domainagg.IngestionAggregate
	devices  registryrepos.DeviceRepo
	bindings registryrepos.BindingRepo
	sessions telemetryrepos.SessionRepo
	records  telemetryrepos.RecordRepo
	alerts   telemetryrepos.AlertRepo
}

func newIngestionFixture(t *testing.T, tx *gorm.DB) *ingestionFixture {
	t.Helper()
	log := repotest.Logger(t)
	f := &ingestionFixture{
		devices:  registryrepos.NewDeviceRepo(tx, log),
		bindings: registryrepos.NewBindingRepo(tx, log),
		sessions: telemetryrepos.NewSessionRepo(tx, log),
		records:  telemetryrepos.NewRecordRepo(tx, log),
		alerts:   telemetryrepos.NewAlertRepo(tx, log),
	}
	f.agg = NewIngestionAggregate(IngestionAggregateDeps{
		Base: BaseDeps{
			DB:       tx,
			Runner:   NewGormTxRunner(tx),
		},
		Rules:    alertrules.DefaultConfig(),
		Devices:  f.devices,
		Bindings: f.bindings,
		Sessions: f.sessions,
		Records:  f.records,
		Alerts:   f.alerts,
	})
	return f
}

func uploadPayload(deviceExt, sessionID string, battery int) *ingest.Payload {
	return &ingest.Payload{
		Metadata: &ingest.Metadata{
			DeviceID:            deviceExt,
			SessionID:           sessionID,
			Timestamp:           1721054280000,
			FirmwareVersion:     "2.1.3",
			DataIntervalSeconds: 30,
			UploadReason:        string(telemetry.UploadReasonScheduled),
		},
		RawSensorData: &ingest.RawSensorData{
			VitalSignsSamples: []ingest.VitalSignsSample{
				{TimestampOffset: 0, TemperatureC: 38.4, HeartRateBPM: 72},
				{TimestampOffset: 30000, TemperatureC: 38.6, HeartRateBPM: 75},
			},
			MotionSamples: []ingest.MotionSample{
				{TimestampOffset: 0, Acceleration: ingest.Acceleration{X: 0.12, Y: -0.05, Z: 9.81}, MovementIntensity: 0.35},
			},
		},
		OfflineInference: &ingest.OfflineInference{
			HealthAssessment: ingest.HealthAssessment{
				OverallHealthScore:  8,
				VitalSignsStability: 9,
				TrendAnalysis:       string(telemetry.HealthTrendStable),
			},
			BehaviorAnalysis: ingest.BehaviorAnalysis{
				ActivityLevel:   6,
				MoodState:       7,
				BehaviorPattern: "resting",
			},
		},
		SummaryStatistics: &ingest.SummaryStatistics{
			TemperatureStats: ingest.Stats{Mean: 38.5, Min: 38.4, Max: 38.6},
			HeartRateStats:   ingest.Stats{Mean: 73.5, Min: 72, Max: 75},
		},
		SystemStatus: &ingest.SystemStatus{
			BatteryLevel:       battery,
			MemoryUsagePercent: 45,
			StorageAvailableMB: 1024,
		},
	}
}

func TestIngestionAggregateHappyPath(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	owner := repotest.SeedUser(t, ctx, tx, "happy@pawsense.io")
	device := repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_001")
	pet := repotest.SeedPet(t, ctx, tx, owner.ID, "Rex")
	repotest.SeedBinding(t, ctx, tx, pet.ID, device.ID)

	p := uploadPayload("PET_MONITOR_001", "sess_20240715143000", 87)
	res, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload:    p,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("IngestSession: %v", err)
	}
	if res.DeviceID != device.ID {
		t.Fatalf("device id: want=%s got=%s", device.ID, res.DeviceID)
	}
	if res.PetID == nil || *res.PetID != pet.ID {
		t.Fatalf("pet id: want=%s got=%v", pet.ID, res.PetID)
	}
	if res.AlertsCount != 0 {
		t.Fatalf("alerts count: want=0 got=%d", res.AlertsCount)
	}
	if got := res.RecordedAt.UnixMilli(); got != 1721054280000 {
		t.Fatalf("recorded at: want=1721054280000 got=%d", got)
	}

	session, err := f.sessions.GetBySessionID(ctx, tx, "sess_20240715143000")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if session.ID != res.SessionID || session.DeviceID != device.ID {
		t.Fatalf("session row mismatch: %+v", session)
	}

	agg, err := f.records.LoadAggregate(ctx, tx, res.SessionID)
	if err != nil {
		t.Fatalf("LoadAggregate: %v", err)
	}
	if len(agg.Vitals) != 2 || len(agg.Motion) != 1 {
		t.Fatalf("sample counts: vitals=%d motion=%d", len(agg.Vitals), len(agg.Motion))
	}
	if agg.Assessment == nil || agg.Assessment.OverallHealthScore != 8 {
		t.Fatalf("assessment: %+v", agg.Assessment)
	}
	if agg.Behavior == nil || agg.Behavior.BehaviorPattern != "resting" {
		t.Fatalf("behavior: %+v", agg.Behavior)
	}
	if agg.Media != nil {
		t.Fatalf("media row should not exist for payload without media events")
	}
	if agg.Summary == nil || agg.Summary.HeartRateMax != 75 {
		t.Fatalf("summary: %+v", agg.Summary)
	}
	if agg.Status == nil || agg.Status.BatteryLevel != 87 {
		t.Fatalf("status: %+v", agg.Status)
	}

	refreshed, err := f.devices.GetByID(ctx, tx, device.ID)
	if err != nil {
		t.Fatalf("GetByID device: %v", err)
	}
	if refreshed.BatteryLevel == nil || *refreshed.BatteryLevel != 87 {
		t.Fatalf("device battery: %+v", refreshed.BatteryLevel)
	}
	if refreshed.LastOnlineAt == nil || refreshed.LastSyncAt == nil {
		t.Fatalf("device liveness not refreshed: %+v", refreshed)
	}
	if refreshed.Status != string(registry.DeviceStatusActive) {
		t.Fatalf("device status: want=active got=%s", refreshed.Status)
	}
}

func TestIngestionAggregateDuplicateSession(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_DUP")

	first, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload: uploadPayload("PET_MONITOR_DUP", "sess_dup_001", 80),
	})
	if err != nil {
		t.Fatalf("first IngestSession: %v", err)
	}

	_, err = f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload: uploadPayload("PET_MONITOR_DUP", "sess_dup_001", 79),
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate: want conflict got %v", err)
	}
	details := domainagg.DetailsOf(err)
	if details == nil || details[domainagg.DetailExistingSessionID] != first.SessionID.String() {
		t.Fatalf("conflict details: %+v", details)
	}

	rows, err := f.sessions.List(ctx, tx, telemetryrepos.SessionFilter{SessionID: "sess_dup_001"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("session rows after duplicate: err=%v len=%d", err, len(rows))
	}
}

func TestIngestionAggregateDeviceNotFound(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	_, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload: uploadPayload("PET_MONITOR_GHOST", "sess_ghost_001", 50),
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown device: want not_found got %v", err)
	}

	if _, err := f.sessions.GetBySessionID(ctx, tx, "sess_ghost_001"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("no session row expected: %v", err)
	}
}

func TestIngestionAggregateIdentityMismatch(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_AUTH")

	_, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload:              uploadPayload("PET_MONITOR_AUTH", "sess_auth_001", 60),
		AuthDeviceExternalID: "PET_MONITOR_OTHER",
	})
	if !domainagg.IsCode(err, domainagg.CodeIdentityMismatch) {
		t.Fatalf("want identity_mismatch got %v", err)
	}

	if _, err := f.sessions.GetBySessionID(ctx, tx, "sess_auth_001"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("no session row expected: %v", err)
	}
}

func TestIngestionAggregateAlertSequence(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	owner := repotest.SeedUser(t, ctx, tx, "alerts@pawsense.io")
	device := repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_ALERTS")
	pet := repotest.SeedPet(t, ctx, tx, owner.ID, "Milo")
	repotest.SeedBinding(t, ctx, tx, pet.ID, device.ID)

	upload := func(sessionID string, battery int, tsOffset int64, mutate func(p *ingest.Payload)) domainagg.IngestSessionResult {
		t.Helper()
		p := uploadPayload("PET_MONITOR_ALERTS", sessionID, battery)
		p.Metadata.Timestamp = 1721054280000 + tsOffset
		if mutate != nil {
			mutate(p)
		}
		res, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{Payload: p})
		if err != nil {
			t.Fatalf("IngestSession %s: %v", sessionID, err)
		}
		return res
	}

	// Healthy battery, nothing to report.
	if res := upload("sess_alerts_001", 25, 0, nil); res.AlertsCount != 0 {
		t.Fatalf("first upload alerts: want=0 got=%d", res.AlertsCount)
	}

	// Crossing 20% plus an abnormality plus a behavior flag.
	res := upload("sess_alerts_002", 15, 60_000, func(p *ingest.Payload) {
		p.OfflineInference.HealthAssessment.AbnormalitiesDetected = []string{"elevated_heart_rate"}
		p.OfflineInference.BehaviorAnalysis.UnusualBehaviorDetected = true
		p.OfflineInference.BehaviorAnalysis.BehaviorPattern = "pacing"
	})
	if res.AlertsCount != 3 {
		t.Fatalf("second upload alerts: want=3 got=%d", res.AlertsCount)
	}

	rows, err := f.alerts.List(ctx, tx, telemetryrepos.AlertFilter{SessionID: repotest.PtrUUID(res.SessionID)})
	if err != nil || len(rows) != 3 {
		t.Fatalf("alert rows: err=%v len=%d", err, len(rows))
	}
	types := map[string]bool{}
	for _, row := range rows {
		types[row.Type] = true
		if row.PetID == nil || *row.PetID != pet.ID {
			t.Fatalf("alert pet id: %+v", row.PetID)
		}
		if row.SessionID == nil || *row.SessionID != res.SessionID {
			t.Fatalf("alert session id: %+v", row.SessionID)
		}
	}
	for _, want := range []telemetry.AlertType{telemetry.AlertTypeHealthAnomaly, telemetry.AlertTypeBatteryLow, telemetry.AlertTypeUnusualBehavior} {
		if !types[string(want)] {
			t.Fatalf("missing alert type %s in %v", want, types)
		}
	}
	for _, row := range rows {
		if row.Type == string(telemetry.AlertTypeBatteryLow) {
			var data map[string]interface{}
			if err := json.Unmarshal(row.Data, &data); err != nil {
				t.Fatalf("battery alert data: %v", err)
			}
			if data["battery_level"] != float64(15) || data["previous_battery_level"] != float64(25) {
				t.Fatalf("battery alert data: %+v", data)
			}
			if row.Severity != string(telemetry.AlertSeverityWarning) {
				t.Fatalf("battery severity: %s", row.Severity)
			}
		}
	}

	// Still below threshold, no re-fire.
	if res := upload("sess_alerts_003", 12, 120_000, nil); res.AlertsCount != 0 {
		t.Fatalf("third upload alerts: want=0 got=%d", res.AlertsCount)
	}

	// Already below the threshold at the last report, so even a critical
	// level stays silent until the battery recovers first.
	res = upload("sess_alerts_004", 8, 180_000, nil)
	if res.AlertsCount != 0 {
		t.Fatalf("fourth upload alerts: want=0 got=%d", res.AlertsCount)
	}
}

func TestIngestionAggregateBatteryCriticalOnFirstUpload(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_CRIT")

	// No prior status, so the low battery fires immediately, critical tier.
	res, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload: uploadPayload("PET_MONITOR_CRIT", "sess_crit_001", 8),
	})
	if err != nil {
		t.Fatalf("IngestSession: %v", err)
	}
	if res.AlertsCount != 1 {
		t.Fatalf("alerts count: want=1 got=%d", res.AlertsCount)
	}
	rows, err := f.alerts.List(ctx, tx, telemetryrepos.AlertFilter{SessionID: repotest.PtrUUID(res.SessionID)})
	if err != nil || len(rows) != 1 {
		t.Fatalf("alert rows: err=%v len=%d", err, len(rows))
	}
	if rows[0].Severity != string(telemetry.AlertSeverityCritical) {
		t.Fatalf("severity: want=critical got=%s", rows[0].Severity)
	}
}

func TestIngestionAggregateMediaRecords(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	f := newIngestionFixture(t, tx)

	repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_MEDIA")

	p := uploadPayload("PET_MONITOR_MEDIA", "sess_media_001", 70)
	p.OfflineInference.MediaAnalysis = &ingest.MediaAnalysis{
		AudioEvents: []ingest.AudioEvent{
			{TimestampOffset: 1000, EventType: "barking", DurationMs: 2500, EmotionalTone: "excited"},
			{TimestampOffset: 9000, EventType: "whining", DurationMs: 1200, EmotionalTone: "anxious"},
		},
		VideoAnalysis: []ingest.VideoEvent{
			{TimestampOffset: 4000, MovementType: "running", EnvironmentChanges: "door opened"},
		},
	}

	res, err := f.agg.IngestSession(ctx, domainagg.IngestSessionInput{Payload: p})
	if err != nil {
		t.Fatalf("IngestSession: %v", err)
	}

	agg, err := f.records.LoadAggregate(ctx, tx, res.SessionID)
	if err != nil {
		t.Fatalf("LoadAggregate: %v", err)
	}
	if agg.Media == nil || agg.Media.AudioEventCount != 2 || agg.Media.VideoEventCount != 1 {
		t.Fatalf("media row: %+v", agg.Media)
	}
	if len(agg.AudioEvents) != 2 || len(agg.VideoEvents) != 1 {
		t.Fatalf("media events: audio=%d video=%d", len(agg.AudioEvents), len(agg.VideoEvents))
	}
	if agg.AudioEvents[0].EventType != "barking" || agg.VideoEvents[0].MovementType != "running" {
		t.Fatalf("media event payloads: %+v %+v", agg.AudioEvents[0], agg.VideoEvents[0])
	}
}

type failingAlertRepo struct {
	telemetryrepos.AlertRepo
}

func (failingAlertRepo) CreateMany(ctx context.Context, tx *gorm.DB, alerts []*telemetry.HealthAlert) error {
	return fmt.Errorf("alert store unavailable")
}

func TestIngestionAggregateRollsBackOnFailure(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	ctx := context.Background()
	log := repotest.Logger(t)

	repotest.SeedDevice(t, ctx, tx, "PET_MONITOR_ROLLBACK")

	sessions := telemetryrepos.NewSessionRepo(tx, log)
	agg := NewIngestionAggregate(IngestionAggregateDeps{
		Base: BaseDeps{
			DB:       tx,
			Runner:   NewGormTxRunner(tx),
		},
		Rules:    alertrules.DefaultConfig(),
		Devices:  registryrepos.NewDeviceRepo(tx, log),
		Bindings: registryrepos.NewBindingRepo(tx, log),
		Sessions: sessions,
		Records:  telemetryrepos.NewRecordRepo(tx, log),
		Alerts:   failingAlertRepo{telemetryrepos.NewAlertRepo(tx, log)},
	})

	_, err := agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload: uploadPayload("PET_MONITOR_ROLLBACK", "sess_rollback_001", 40),
	})
	if err == nil {
		t.Fatalf("expected failure from alert store")
	}

	// The session and every child row must have rolled back with the alerts.
	if _, err := sessions.GetBySessionID(ctx, tx, "sess_rollback_001"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("session row should have rolled back: %v", err)
	}
	device, err := registryrepos.NewDeviceRepo(tx, log).GetByExternalID(ctx, tx, "PET_MONITOR_ROLLBACK")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if device.LastSyncAt != nil {
		t.Fatalf("device liveness should have rolled back: %+v", device.LastSyncAt)
	}
}
