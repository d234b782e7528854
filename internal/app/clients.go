package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/pawsense/pawsense-backend/internal/clients/analysis"
	"github.com/pawsense/pawsense-backend/internal/clients/redis"
	"github.com/pawsense/pawsense-backend/internal/platform/gcs"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type Clients struct {
	AlertBus redis.AlertBus
	Analysis analysis.Client
	Bucket   gcs.BucketService
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("wiring clients")

	// Redis (optional; unset REDIS_ADDR yields the no-op publisher)
	bus, err := redis.NewAlertBusFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis alert bus: %w", err)
	}

	// Analysis collaborator (optional; the trigger pipeline stays off without it)
	var analysisClient analysis.Client
	if strings.TrimSpace(os.Getenv("ANALYSIS_SERVICE_URL")) != "" {
		ac, err := analysis.NewFromEnv(log)
		if err != nil {
			_ = bus.Close()
			return Clients{}, fmt.Errorf("init analysis client: %w", err)
		}
		analysisClient = ac
	} else {
		log.Warn("ANALYSIS_SERVICE_URL not set; automatic analysis is disabled")
	}

	// GCS bucket for avatar assets
	bucket, err := gcs.NewBucketService(log)
	if err != nil {
		_ = bus.Close()
		return Clients{}, fmt.Errorf("init gcs bucket: %w", err)
	}

	return Clients{
		AlertBus: bus,
		Analysis: analysisClient,
		Bucket:   bucket,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.AlertBus != nil {
		_ = c.AlertBus.Close()
	}
}
