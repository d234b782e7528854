package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/pawsense/pawsense-backend/internal/data/repos/testutil"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

func TestRecordRepo_LoadAggregate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))

	device := testutil.SeedDevice(t, ctx, tx, "PET_MONITOR_R01")
	session := testutil.SeedSession(t, ctx, tx, device.ID, "sess_r01")

	vitals := []*telemetry.VitalSignsSample{
		{ID: uuid.New(), SessionID: session.ID, TimestampOffset: 30000, TemperatureC: 38.4, HeartRateBPM: 92},
		{ID: uuid.New(), SessionID: session.ID, TimestampOffset: 0, TemperatureC: 38.2, HeartRateBPM: 88},
	}
	if err := repo.CreateVitalSamples(ctx, tx, vitals); err != nil {
		t.Fatalf("CreateVitalSamples: %v", err)
	}
	motion := []*telemetry.MotionSample{
		{ID: uuid.New(), SessionID: session.ID, TimestampOffset: 0, AccelerationX: 0.1, AccelerationY: 0.2, AccelerationZ: 9.8, MovementIntensity: 0.4},
	}
	if err := repo.CreateMotionSamples(ctx, tx, motion); err != nil {
		t.Fatalf("CreateMotionSamples: %v", err)
	}

	if _, err := repo.CreateHealthAssessment(ctx, tx, &telemetry.HealthAssessment{
		ID:                    uuid.New(),
		SessionID:             session.ID,
		OverallHealthScore:    8,
		VitalSignsStability:   7,
		AbnormalitiesDetected: datatypes.JSON([]byte(`["elevated_heart_rate"]`)),
		TrendAnalysis:         string(telemetry.HealthTrendStable),
	}); err != nil {
		t.Fatalf("CreateHealthAssessment: %v", err)
	}
	if _, err := repo.CreateBehaviorAnalysis(ctx, tx, &telemetry.BehaviorAnalysis{
		ID:                      uuid.New(),
		SessionID:               session.ID,
		ActivityLevel:           6,
		MoodState:               7,
		BehaviorPattern:         "playful",
		UnusualBehaviorDetected: false,
	}); err != nil {
		t.Fatalf("CreateBehaviorAnalysis: %v", err)
	}

	media, err := repo.CreateMediaAnalysis(ctx, tx, &telemetry.MediaAnalysis{
		ID:              uuid.New(),
		SessionID:       session.ID,
		AudioEventCount: 1,
		VideoEventCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateMediaAnalysis: %v", err)
	}
	if err := repo.CreateAudioEvents(ctx, tx, []*telemetry.AudioEvent{
		{ID: uuid.New(), MediaAnalysisID: media.ID, TimestampOffset: 12000, EventType: "bark", DurationMs: 800, EmotionalTone: "excited"},
	}); err != nil {
		t.Fatalf("CreateAudioEvents: %v", err)
	}
	if err := repo.CreateVideoEvents(ctx, tx, []*telemetry.VideoEvent{
		{ID: uuid.New(), MediaAnalysisID: media.ID, TimestampOffset: 15000, MovementType: "running", EnvironmentChanges: "none"},
	}); err != nil {
		t.Fatalf("CreateVideoEvents: %v", err)
	}

	if _, err := repo.CreateSummaryStatistics(ctx, tx, &telemetry.SummaryStatistics{
		ID:              uuid.New(),
		SessionID:       session.ID,
		TemperatureMean: 38.3,
		TemperatureMin:  38.2,
		TemperatureMax:  38.4,
		HeartRateMean:   90,
		HeartRateMin:    88,
		HeartRateMax:    92,
	}); err != nil {
		t.Fatalf("CreateSummaryStatistics: %v", err)
	}
	if _, err := repo.CreateSystemStatus(ctx, tx, &telemetry.SystemStatus{
		ID:                 uuid.New(),
		SessionID:          session.ID,
		BatteryLevel:       78,
		MemoryUsagePercent: 45,
		StorageAvailableMB: 1024,
	}); err != nil {
		t.Fatalf("CreateSystemStatus: %v", err)
	}

	agg, err := repo.LoadAggregate(ctx, tx, session.ID)
	if err != nil {
		t.Fatalf("LoadAggregate: %v", err)
	}
	if agg.Session == nil || agg.Session.ID != session.ID {
		t.Fatalf("aggregate session: %+v", agg.Session)
	}
	if len(agg.Vitals) != 2 || agg.Vitals[0].TimestampOffset != 0 {
		t.Fatalf("aggregate vitals: len=%d", len(agg.Vitals))
	}
	if len(agg.Motion) != 1 {
		t.Fatalf("aggregate motion: len=%d", len(agg.Motion))
	}
	if agg.Assessment == nil || agg.Assessment.OverallHealthScore != 8 {
		t.Fatalf("aggregate assessment: %+v", agg.Assessment)
	}
	if agg.Behavior == nil || agg.Behavior.BehaviorPattern != "playful" {
		t.Fatalf("aggregate behavior: %+v", agg.Behavior)
	}
	if agg.Media == nil || len(agg.AudioEvents) != 1 || len(agg.VideoEvents) != 1 {
		t.Fatalf("aggregate media: media=%v audio=%d video=%d", agg.Media, len(agg.AudioEvents), len(agg.VideoEvents))
	}
	if agg.Summary == nil || agg.Summary.HeartRateMax != 92 {
		t.Fatalf("aggregate summary: %+v", agg.Summary)
	}
	if agg.Status == nil || agg.Status.BatteryLevel != 78 {
		t.Fatalf("aggregate status: %+v", agg.Status)
	}
}

func TestRecordRepo_LoadAggregate_SparseSession(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))

	device := testutil.SeedDevice(t, ctx, tx, "PET_MONITOR_R02")
	session := testutil.SeedSession(t, ctx, tx, device.ID, "sess_r02")

	// A session persisted with no child records at all still aggregates.
	agg, err := repo.LoadAggregate(ctx, tx, session.ID)
	if err != nil {
		t.Fatalf("LoadAggregate: %v", err)
	}
	if agg.Session == nil || agg.Session.ID != session.ID {
		t.Fatalf("aggregate session: %+v", agg.Session)
	}
	if len(agg.Vitals) != 0 || len(agg.Motion) != 0 {
		t.Fatalf("expected no samples: vitals=%d motion=%d", len(agg.Vitals), len(agg.Motion))
	}
	if agg.Assessment != nil || agg.Behavior != nil || agg.Media != nil || agg.Summary != nil || agg.Status != nil {
		t.Fatalf("expected nil optional records: %+v", agg)
	}
}

func TestRecordRepo_LatestSystemStatusBefore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))

	device := testutil.SeedDevice(t, ctx, tx, "PET_MONITOR_R03")

	older := testutil.SeedSession(t, ctx, tx, device.ID, "sess_r03_a")
	older.RecordedAt = time.Now().UTC().Add(-3 * time.Hour)
	if err := tx.WithContext(ctx).Save(older).Error; err != nil {
		t.Fatalf("save older: %v", err)
	}
	newer := testutil.SeedSession(t, ctx, tx, device.ID, "sess_r03_b")
	newer.RecordedAt = time.Now().UTC().Add(-1 * time.Hour)
	if err := tx.WithContext(ctx).Save(newer).Error; err != nil {
		t.Fatalf("save newer: %v", err)
	}
	current := testutil.SeedSession(t, ctx, tx, device.ID, "sess_r03_c")

	testutil.SeedSystemStatus(t, ctx, tx, older.ID, 40)
	testutil.SeedSystemStatus(t, ctx, tx, newer.ID, 25)

	got, err := repo.LatestSystemStatusBefore(ctx, tx, device.ID, current.ID)
	if err != nil {
		t.Fatalf("LatestSystemStatusBefore: %v", err)
	}
	if got == nil || got.BatteryLevel != 25 {
		t.Fatalf("expected newer status, got %+v", got)
	}

	// First session for a device has no prior status.
	fresh := testutil.SeedDevice(t, ctx, tx, "PET_MONITOR_R04")
	first := testutil.SeedSession(t, ctx, tx, fresh.ID, "sess_r04_a")
	got, err = repo.LatestSystemStatusBefore(ctx, tx, fresh.ID, first.ID)
	if err != nil {
		t.Fatalf("LatestSystemStatusBefore(first): %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil prior status, got %+v", got)
	}
}
