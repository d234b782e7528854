// Package redis publishes alert events for downstream notification fan-out.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// AlertEvent is the wire shape published for every persisted alert.
type AlertEvent struct {
	AlertID  uuid.UUID  `json:"alertId"`
	PetID    *uuid.UUID `json:"petId,omitempty"`
	DeviceID uuid.UUID  `json:"deviceId"`
	Type     string     `json:"type"`
	Severity string     `json:"severity"`
	TS       time.Time  `json:"ts"`
}

type AlertBus interface {
	Publish(ctx context.Context, ev AlertEvent) error
	Close() error
}

type alertBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewAlertBusFromEnv builds the publisher from REDIS_ADDR. An unset address
// disables publishing entirely and returns the no-op bus.
func NewAlertBusFromEnv(log *logger.Logger) (AlertBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return NewNoopAlertBus(), nil
	}
	ch := strings.TrimSpace(os.Getenv("ALERT_EVENTS_CHANNEL"))
	if ch == "" {
		ch = "pawsense.alerts"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &alertBus{
		log:     log.With("client", "RedisAlertBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *alertBus) Publish(ctx context.Context, ev AlertEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis alert bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *alertBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

type noopAlertBus struct{}

// NewNoopAlertBus returns a publisher that drops every event. Used when
// REDIS_ADDR is not configured.
func NewNoopAlertBus() AlertBus { return noopAlertBus{} }

func (noopAlertBus) Publish(context.Context, AlertEvent) error { return nil }
func (noopAlertBus) Close() error                              { return nil }
