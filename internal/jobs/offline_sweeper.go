package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/clients/redis"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/envutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// OfflineSweeper watches for devices that stopped uploading. A device still
// marked active whose last_online_at has aged past the threshold flips to
// inactive and gets one device_offline alert. The flip is the edge trigger:
// only the sweep that wins the conditional update emits the alert, so
// repeated sweeps and concurrent instances never duplicate it.
type OfflineSweeper struct {
	db       *gorm.DB
	log      *logger.Logger
	devices  repos.DeviceRepo
	bindings repos.BindingRepo
	alerts   repos.AlertRepo
	bus      redis.AlertBus

	interval     time.Duration
	offlineAfter time.Duration
	batchLimit   int

	wg sync.WaitGroup
}

func NewOfflineSweeper(
	db *gorm.DB,
	baseLog *logger.Logger,
	devices repos.DeviceRepo,
	bindings repos.BindingRepo,
	alerts repos.AlertRepo,
	bus redis.AlertBus,
) *OfflineSweeper {
	log := baseLog.With("component", "OfflineSweeper")

	intervalSeconds := envutil.GetEnvAsInt("OFFLINE_SWEEP_INTERVAL_SECONDS", 60, log)
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	offlineAfterSeconds := envutil.GetEnvAsInt("DEVICE_OFFLINE_AFTER_SECONDS", 600, log)
	if offlineAfterSeconds <= 0 {
		offlineAfterSeconds = 600
	}
	batchLimit := envutil.GetEnvAsInt("OFFLINE_SWEEP_BATCH_LIMIT", 100, log)
	if batchLimit <= 0 {
		batchLimit = 100
	}

	return &OfflineSweeper{
		db:           db,
		log:          log,
		devices:      devices,
		bindings:     bindings,
		alerts:       alerts,
		bus:          bus,
		interval:     time.Duration(intervalSeconds) * time.Second,
		offlineAfter: time.Duration(offlineAfterSeconds) * time.Second,
		batchLimit:   batchLimit,
	}
}

func (s *OfflineSweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.log.Info("Offline sweeper started",
			"interval", s.interval.String(),
			"offline_after", s.offlineAfter.String(),
		)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Offline sweeper stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop blocks until the sweep loop has exited. Cancel the Start context first.
func (s *OfflineSweeper) Stop() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Sweep runs one pass. Exported so a pass is triggerable outside the ticker.
func (s *OfflineSweeper) Sweep(ctx context.Context) {
	if s == nil || s.db == nil || s.devices == nil || s.alerts == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.offlineAfter)
	stale, err := s.devices.ListStaleActive(ctx, nil, cutoff, s.batchLimit)
	if err != nil {
		s.log.Warn("Stale device scan failed", "error", err)
		return
	}
	for _, device := range stale {
		alert, err := s.takeOffline(ctx, device, cutoff)
		if err != nil {
			s.log.Warn("Device offline transition failed",
				"device_id", device.ID,
				"external_id", device.ExternalID,
				"error", err,
			)
			continue
		}
		if alert == nil {
			// Lost the flip to an upload or another sweep.
			continue
		}
		s.announce(ctx, device, alert)
	}
}

// takeOffline flips one device and writes its alert in a single transaction.
// A nil alert with nil error means the device was no longer stale-active.
func (s *OfflineSweeper) takeOffline(ctx context.Context, device *registry.Device, cutoff time.Time) (*telemetry.HealthAlert, error) {
	var created *telemetry.HealthAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := s.devices.MarkOffline(ctx, tx, device.ID, cutoff)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		var petID *uuid.UUID
		if s.bindings != nil {
			binding, err := s.bindings.GetActiveByDeviceID(ctx, tx, device.ID)
			if err != nil {
				return err
			}
			if binding != nil {
				petID = &binding.PetID
			}
		}

		data, err := json.Marshal(map[string]any{
			"external_id":           device.ExternalID,
			"last_online_at":        device.LastOnlineAt,
			"offline_after_seconds": int(s.offlineAfter.Seconds()),
		})
		if err != nil {
			return fmt.Errorf("marshal alert data: %w", err)
		}

		alert := &telemetry.HealthAlert{
			DeviceID: device.ID,
			PetID:    petID,
			Type:     string(telemetry.AlertTypeDeviceOffline),
			Severity: string(telemetry.AlertSeverityError),
			Message:  fmt.Sprintf("Device offline: no uploads for over %s", s.offlineAfter),
			Data:     datatypes.JSON(data),
		}
		if err := s.alerts.CreateMany(ctx, tx, []*telemetry.HealthAlert{alert}); err != nil {
			return err
		}
		created = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// announce runs after commit; failures here never undo the flip.
func (s *OfflineSweeper) announce(ctx context.Context, device *registry.Device, alert *telemetry.HealthAlert) {
	metrics := observability.Current()
	metrics.IncDeviceMarkedOffline()
	metrics.IncAlertCreated(alert.Type, alert.Severity)

	s.log.Info("Device marked offline",
		"device_id", device.ID,
		"external_id", device.ExternalID,
		"alert_id", alert.ID,
	)

	if s.bus == nil {
		return
	}
	ev := redis.AlertEvent{
		AlertID:  alert.ID,
		PetID:    alert.PetID,
		DeviceID: alert.DeviceID,
		Type:     alert.Type,
		Severity: alert.Severity,
		TS:       alert.CreatedAt,
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("Alert event publish failed", "alert_id", alert.ID, "error", err)
	}
}
