package aggregates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/aggregates"
	aggtest "github.com/pawsense/pawsense-backend/internal/data/aggregates/testutil"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/ingest/alertrules"
)

// The fakes below override only what IngestSession touches; anything else
// panics through the embedded nil interface.

type stubDeviceRepo struct {
	repos.DeviceRepo
	device       *registry.Device
	syncedBatt   int
	syncedCalled bool
}

func (f *stubDeviceRepo) LockByExternalID(_ context.Context, _ *gorm.DB, externalID string) (*registry.Device, error) {
	if f.device == nil || f.device.ExternalID != externalID {
		return nil, gorm.ErrRecordNotFound
	}
	return f.device, nil
}

func (f *stubDeviceRepo) MarkSynced(_ context.Context, _ *gorm.DB, _ uuid.UUID, batteryLevel int, _ time.Time) error {
	f.syncedBatt = batteryLevel
	f.syncedCalled = true
	return nil
}

type stubSessionRepo struct {
	repos.SessionRepo
	existing  *telemetry.SensorDataSession
	created   *telemetry.SensorDataSession
	createErr error
}

func (f *stubSessionRepo) GetBySessionID(_ context.Context, _ *gorm.DB, sessionID string) (*telemetry.SensorDataSession, error) {
	if f.existing != nil && f.existing.SessionID == sessionID {
		return f.existing, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *stubSessionRepo) Create(_ context.Context, _ *gorm.DB, session *telemetry.SensorDataSession) (*telemetry.SensorDataSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = session
	return session, nil
}

type stubRecordRepo struct {
	repos.RecordRepo
	prior      *telemetry.SystemStatus
	vitals     int
	motion     int
	childRows  int
	lastStatus *telemetry.SystemStatus
}

func (f *stubRecordRepo) LatestSystemStatusBefore(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ uuid.UUID) (*telemetry.SystemStatus, error) {
	return f.prior, nil
}

func (f *stubRecordRepo) CreateVitalSamples(_ context.Context, _ *gorm.DB, samples []*telemetry.VitalSignsSample) error {
	f.vitals = len(samples)
	return nil
}

func (f *stubRecordRepo) CreateMotionSamples(_ context.Context, _ *gorm.DB, samples []*telemetry.MotionSample) error {
	f.motion = len(samples)
	return nil
}

func (f *stubRecordRepo) CreateHealthAssessment(_ context.Context, _ *gorm.DB, record *telemetry.HealthAssessment) (*telemetry.HealthAssessment, error) {
	f.childRows++
	return record, nil
}

func (f *stubRecordRepo) CreateBehaviorAnalysis(_ context.Context, _ *gorm.DB, record *telemetry.BehaviorAnalysis) (*telemetry.BehaviorAnalysis, error) {
	f.childRows++
	return record, nil
}

func (f *stubRecordRepo) CreateSummaryStatistics(_ context.Context, _ *gorm.DB, record *telemetry.SummaryStatistics) (*telemetry.SummaryStatistics, error) {
	f.childRows++
	return record, nil
}

func (f *stubRecordRepo) CreateSystemStatus(_ context.Context, _ *gorm.DB, record *telemetry.SystemStatus) (*telemetry.SystemStatus, error) {
	f.childRows++
	f.lastStatus = record
	return record, nil
}

type stubAlertRepo struct {
	repos.AlertRepo
	created []*telemetry.HealthAlert
}

func (f *stubAlertRepo) CreateMany(_ context.Context, _ *gorm.DB, alerts []*telemetry.HealthAlert) error {
	f.created = append(f.created, alerts...)
	return nil
}

type stubBindingRepo struct {
	repos.BindingRepo
	binding *registry.PetDeviceBinding
}

func (f *stubBindingRepo) GetActiveByDeviceID(_ context.Context, _ *gorm.DB, _ uuid.UUID) (*registry.PetDeviceBinding, error) {
	return f.binding, nil
}

type unitFixture struct {
	agg      domainagg.IngestionAggregate
	runner   *aggtest.FakeTxRunner
	hooks    *aggtest.HookLog
	devices  *stubDeviceRepo
	sessions *stubSessionRepo
	records  *stubRecordRepo
	alerts   *stubAlertRepo
	bindings *stubBindingRepo
}

func newUnitFixture(t *testing.T) *unitFixture {
	t.Helper()

	fx := &unitFixture{
		runner: &aggtest.FakeTxRunner{},
		hooks:  &aggtest.HookLog{},
		devices: &stubDeviceRepo{device: &registry.Device{
			ID:         uuid.New(),
			ExternalID: "PET_MONITOR_001",
			Status:     string(registry.DeviceStatusActive),
		}},
		sessions: &stubSessionRepo{},
		records:  &stubRecordRepo{},
		alerts:   &stubAlertRepo{},
		bindings: &stubBindingRepo{},
	}
	fx.agg = aggregates.NewIngestionAggregate(aggregates.IngestionAggregateDeps{
		Base: aggregates.BaseDeps{
			Runner: fx.runner,
			Hooks:  fx.hooks,
		},
		Rules:    alertrules.DefaultConfig(),
		Devices:  fx.devices,
		Bindings: fx.bindings,
		Sessions: fx.sessions,
		Records:  fx.records,
		Alerts:   fx.alerts,
	})
	return fx
}

func unitPayload() *ingest.Payload {
	return &ingest.Payload{
		Metadata: &ingest.Metadata{
			DeviceID:            "PET_MONITOR_001",
			SessionID:           "sess_unit_001",
			Timestamp:           time.Now().UnixMilli(),
			FirmwareVersion:     "2.1.3",
			DataIntervalSeconds: 30,
			UploadReason:        "scheduled",
		},
		RawSensorData: &ingest.RawSensorData{
			VitalSignsSamples: []ingest.VitalSignsSample{
				{TimestampOffset: 0, TemperatureC: 38.4, HeartRateBPM: 72},
				{TimestampOffset: 30, TemperatureC: 38.5, HeartRateBPM: 75},
			},
			MotionSamples: []ingest.MotionSample{
				{TimestampOffset: 0, Acceleration: ingest.Acceleration{X: 0.1, Y: 0.2, Z: 9.8}, MovementIntensity: 0.3},
			},
		},
		OfflineInference: &ingest.OfflineInference{
			HealthAssessment: ingest.HealthAssessment{
				OverallHealthScore:    88,
				VitalSignsStability:   90,
				AbnormalitiesDetected: []string{"elevated_heart_rate"},
				TrendAnalysis:         "stable",
			},
			BehaviorAnalysis: ingest.BehaviorAnalysis{
				ActivityLevel:   60,
				MoodState:       70,
				BehaviorPattern: "normal_rest",
			},
		},
		SummaryStatistics: &ingest.SummaryStatistics{
			TemperatureStats: ingest.Stats{Mean: 38.45, Min: 38.4, Max: 38.5},
			HeartRateStats:   ingest.Stats{Mean: 73.5, Min: 72, Max: 75},
		},
		SystemStatus: &ingest.SystemStatus{
			BatteryLevel:       15,
			MemoryUsagePercent: 42,
			StorageAvailableMB: 900,
		},
	}
}

func TestIngestSessionCommitAccounting(t *testing.T) {
	t.Parallel()

	fx := newUnitFixture(t)
	prior := 50
	fx.records.prior = &telemetry.SystemStatus{BatteryLevel: prior}
	petID := uuid.New()
	fx.bindings.binding = &registry.PetDeviceBinding{
		ID:       uuid.New(),
		PetID:    petID,
		DeviceID: fx.devices.device.ID,
		IsActive: true,
	}

	res, err := fx.agg.IngestSession(context.Background(), domainagg.IngestSessionInput{
		Payload:    unitPayload(),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("IngestSession: %v", err)
	}

	if fx.runner.Begins != 1 || fx.runner.Commits != 1 || fx.runner.Rollbacks != 0 {
		t.Fatalf("tx accounting: begin=%d commit=%d rollback=%d",
			fx.runner.Begins, fx.runner.Commits, fx.runner.Rollbacks)
	}

	// One anomaly label plus the battery crossing 50 -> 15.
	if res.AlertsCount != 2 || len(fx.alerts.created) != 2 {
		t.Fatalf("alerts: result=%d created=%d", res.AlertsCount, len(fx.alerts.created))
	}
	if res.PetID == nil || *res.PetID != petID {
		t.Fatalf("pet id: %v", res.PetID)
	}
	if fx.sessions.created == nil || fx.sessions.created.ID != res.SessionID {
		t.Fatalf("session row mismatch")
	}
	if fx.records.vitals != 2 || fx.records.motion != 1 {
		t.Fatalf("sample counts: vitals=%d motion=%d", fx.records.vitals, fx.records.motion)
	}
	if !fx.devices.syncedCalled || fx.devices.syncedBatt != 15 {
		t.Fatalf("device sync: called=%v batt=%d", fx.devices.syncedCalled, fx.devices.syncedBatt)
	}

	if len(fx.hooks.Ops) != 1 || fx.hooks.Ops[0].Status != "success" {
		t.Fatalf("hook operations: %+v", fx.hooks.Ops)
	}
}

func TestIngestSessionDuplicateRollsBack(t *testing.T) {
	t.Parallel()

	fx := newUnitFixture(t)
	existingID := uuid.New()
	fx.sessions.existing = &telemetry.SensorDataSession{
		ID:        existingID,
		SessionID: "sess_unit_001",
	}

	_, err := fx.agg.IngestSession(context.Background(), domainagg.IngestSessionInput{
		Payload: unitPayload(),
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := domainagg.DetailsOf(err)[domainagg.DetailExistingSessionID]; got != existingID.String() {
		t.Fatalf("existing session detail: %v", got)
	}

	if fx.runner.Commits != 0 || fx.runner.Rollbacks != 1 {
		t.Fatalf("tx accounting: commit=%d rollback=%d", fx.runner.Commits, fx.runner.Rollbacks)
	}
	if len(fx.hooks.Conflicts) != 1 {
		t.Fatalf("conflict hooks: %+v", fx.hooks.Conflicts)
	}
	if len(fx.alerts.created) != 0 || fx.sessions.created != nil {
		t.Fatalf("duplicate must not persist anything")
	}
}

func TestIngestSessionInsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	fx := newUnitFixture(t)
	fx.sessions.createErr = errors.New("insert failed")

	_, err := fx.agg.IngestSession(context.Background(), domainagg.IngestSessionInput{
		Payload: unitPayload(),
	})
	if !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("expected internal, got %v", err)
	}
	if fx.runner.Commits != 0 || fx.runner.Rollbacks != 1 {
		t.Fatalf("tx accounting: commit=%d rollback=%d", fx.runner.Commits, fx.runner.Rollbacks)
	}
	if len(fx.hooks.Ops) != 1 || fx.hooks.Ops[0].Status != string(domainagg.CodeInternal) {
		t.Fatalf("hook operations: %+v", fx.hooks.Ops)
	}
	if len(fx.alerts.created) != 0 {
		t.Fatalf("alerts must not be written after session insert failure")
	}
}

func TestIngestSessionIdentityMismatchOpensNoTx(t *testing.T) {
	t.Parallel()

	fx := newUnitFixture(t)

	_, err := fx.agg.IngestSession(context.Background(), domainagg.IngestSessionInput{
		Payload:              unitPayload(),
		AuthDeviceExternalID: "PET_MONITOR_OTHER",
	})
	if !domainagg.IsCode(err, domainagg.CodeIdentityMismatch) {
		t.Fatalf("expected identity mismatch, got %v", err)
	}
	if fx.runner.Begins != 0 {
		t.Fatalf("identity check must run before the transaction, begin=%d", fx.runner.Begins)
	}
}
