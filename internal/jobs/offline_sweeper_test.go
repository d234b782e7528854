package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/clients/redis"
	registryrepos "github.com/pawsense/pawsense-backend/internal/data/repos/registry"
	telemetryrepos "github.com/pawsense/pawsense-backend/internal/data/repos/telemetry"
	repotest "github.com/pawsense/pawsense-backend/internal/data/repos/testutil"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

type captureBus struct {
	mu     sync.Mutex
	events []redis.AlertEvent
}

func (b *captureBus) Publish(_ context.Context, ev redis.AlertEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *captureBus) Close() error { return nil }

type sweeperFixture struct {
	tx       *gorm.DB
	sweeper  *OfflineSweeper
	devices  registryrepos.DeviceRepo
	alerts   telemetryrepos.AlertRepo
	bindings registryrepos.BindingRepo
	bus      *captureBus
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()
	tx := repotest.Tx(t, repotest.DB(t))
	log := repotest.Logger(t)
	bus := &captureBus{}

	devices := registryrepos.NewDeviceRepo(tx, log)
	bindings := registryrepos.NewBindingRepo(tx, log)
	alerts := telemetryrepos.NewAlertRepo(tx, log)

	return &sweeperFixture{
		tx:       tx,
		sweeper:  NewOfflineSweeper(tx, log, devices, bindings, alerts, bus),
		devices:  devices,
		alerts:   alerts,
		bindings: bindings,
		bus:      bus,
	}
}

func (f *sweeperFixture) setLastOnline(t *testing.T, deviceID uuid.UUID, at time.Time) {
	t.Helper()
	if err := f.tx.Model(&registry.Device{}).
		Where("id = ?", deviceID).
		Update("last_online_at", at).Error; err != nil {
		t.Fatalf("set last_online_at: %v", err)
	}
}

func (f *sweeperFixture) deviceAlerts(t *testing.T, device registry.Device) []*telemetry.HealthAlert {
	t.Helper()
	rows, err := f.alerts.List(context.Background(), nil, telemetryrepos.AlertFilter{
		DeviceIDs: []uuid.UUID{device.ID},
	})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return rows
}

func TestOfflineSweeperFlipsStaleBoundDevice(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	owner := repotest.SeedUser(t, ctx, f.tx, "sweep-owner@example.com")
	pet := repotest.SeedPet(t, ctx, f.tx, owner.ID, "Biscuit")
	device := repotest.SeedDevice(t, ctx, f.tx, "PET_MONITOR_200")
	repotest.SeedBinding(t, ctx, f.tx, pet.ID, device.ID)
	f.setLastOnline(t, device.ID, time.Now().UTC().Add(-20*time.Minute))

	f.sweeper.Sweep(ctx)

	got, err := f.devices.GetByID(ctx, nil, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.Status != string(registry.DeviceStatusInactive) {
		t.Fatalf("expected device inactive, got %s", got.Status)
	}

	rows := f.deviceAlerts(t, *device)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(rows))
	}
	alert := rows[0]
	if alert.Type != string(telemetry.AlertTypeDeviceOffline) {
		t.Fatalf("unexpected alert type %s", alert.Type)
	}
	if alert.Severity != string(telemetry.AlertSeverityError) {
		t.Fatalf("unexpected severity %s", alert.Severity)
	}
	if alert.SessionID != nil {
		t.Fatal("offline alert must not reference a session")
	}
	if alert.PetID == nil || *alert.PetID != pet.ID {
		t.Fatalf("expected alert attributed to pet %s, got %v", pet.ID, alert.PetID)
	}

	if len(f.bus.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(f.bus.events))
	}
	if f.bus.events[0].Type != string(telemetry.AlertTypeDeviceOffline) {
		t.Fatalf("unexpected event type %s", f.bus.events[0].Type)
	}

	// The flip already happened, so a second pass must not add anything.
	f.sweeper.Sweep(ctx)
	if rows := f.deviceAlerts(t, *device); len(rows) != 1 {
		t.Fatalf("resweep duplicated the alert: %d rows", len(rows))
	}
	if len(f.bus.events) != 1 {
		t.Fatalf("resweep republished the event: %d events", len(f.bus.events))
	}
}

func TestOfflineSweeperLeavesFreshDeviceAlone(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	device := repotest.SeedDevice(t, ctx, f.tx, "PET_MONITOR_201")
	f.setLastOnline(t, device.ID, time.Now().UTC())

	f.sweeper.Sweep(ctx)

	got, err := f.devices.GetByID(ctx, nil, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.Status != string(registry.DeviceStatusActive) {
		t.Fatalf("fresh device should stay active, got %s", got.Status)
	}
	if rows := f.deviceAlerts(t, *device); len(rows) != 0 {
		t.Fatalf("fresh device should not alert, got %d rows", len(rows))
	}
}

func TestOfflineSweeperHandlesUnboundDevice(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	// Never uploaded: last_online_at stays NULL, which counts as stale.
	device := repotest.SeedDevice(t, ctx, f.tx, "PET_MONITOR_202")

	f.sweeper.Sweep(ctx)

	got, err := f.devices.GetByID(ctx, nil, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.Status != string(registry.DeviceStatusInactive) {
		t.Fatalf("expected device inactive, got %s", got.Status)
	}
	rows := f.deviceAlerts(t, *device)
	if len(rows) != 1 {
		t.Fatalf("expected one alert, got %d", len(rows))
	}
	if rows[0].PetID != nil {
		t.Fatalf("unbound device alert should carry no pet, got %v", rows[0].PetID)
	}
}

func TestOfflineSweeperSkipsInactiveDevice(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	device := repotest.SeedDevice(t, ctx, f.tx, "PET_MONITOR_203")
	f.setLastOnline(t, device.ID, time.Now().UTC().Add(-time.Hour))
	if err := f.devices.UpdateStatus(ctx, nil, device.ID, string(registry.DeviceStatusMaintenance)); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	f.sweeper.Sweep(ctx)

	got, err := f.devices.GetByID(ctx, nil, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.Status != string(registry.DeviceStatusMaintenance) {
		t.Fatalf("maintenance device should be untouched, got %s", got.Status)
	}
	if rows := f.deviceAlerts(t, *device); len(rows) != 0 {
		t.Fatalf("maintenance device should not alert, got %d rows", len(rows))
	}
}
