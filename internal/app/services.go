package app

import (
	"fmt"

	"gorm.io/gorm"

	dataagg "github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/ingest/alertrules"
	"github.com/pawsense/pawsense-backend/internal/jobs"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type Services struct {
	TokenVerifier services.TokenVerifier

	Avatar services.AvatarService
	User   services.UserService
	Pet    services.PetService
	Device services.DeviceService

	Queries  services.TelemetryQueryService
	Alert    services.AlertService
	Analysis services.AnalysisService

	Ingestion services.IngestionService

	OfflineSweeper *jobs.OfflineSweeper
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	clients Clients,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...")

	verifier := services.NewTokenVerifier(log, cfg.JWTSecretKey)

	avatars, err := services.NewAvatarService(log, clients.Bucket)
	if err != nil {
		return Services{}, fmt.Errorf("init avatar service: %w", err)
	}

	userSvc := services.NewUserService(log, reposet.User, avatars)
	petSvc := services.NewPetService(db, log, reposet.Pet, reposet.Binding, avatars)
	deviceSvc := services.NewDeviceService(db, log, reposet.Device, reposet.Pet, reposet.Binding)

	queries := services.NewTelemetryQueryService(log, reposet.Pet, reposet.Binding, reposet.Session, reposet.Record, reposet.Analysis)
	alertSvc := services.NewAlertService(log, reposet.Pet, reposet.Binding, reposet.Alert)

	rules, err := alertrules.LoadConfig(cfg.RulesConfigPath)
	if err != nil {
		// LoadConfig already fell back to the compiled thresholds.
		log.Warn("Alert rules config not loaded, keeping defaults", "path", cfg.RulesConfigPath, "error", err)
	}

	ingestionAgg := dataagg.NewIngestionAggregate(dataagg.IngestionAggregateDeps{
		Base: dataagg.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: dataagg.NewObservabilityHooks(metrics),
		},
		Rules:    rules,
		Devices:  reposet.Device,
		Bindings: reposet.Binding,
		Sessions: reposet.Session,
		Records:  reposet.Record,
		Alerts:   reposet.Alert,
	})

	analysisSvc := services.NewAnalysisService(
		log,
		cfg.Analysis,
		clients.Analysis,
		reposet.Device,
		reposet.Binding,
		reposet.Pet,
		reposet.Record,
		reposet.Analysis,
		metrics,
	)

	ingestionSvc := services.NewIngestionService(
		log,
		ingestionAgg,
		reposet.Session,
		reposet.Alert,
		clients.AlertBus,
		analysisSvc,
	)

	sweeper := jobs.NewOfflineSweeper(db, log, reposet.Device, reposet.Binding, reposet.Alert, clients.AlertBus)

	return Services{
		TokenVerifier:  verifier,
		Avatar:         avatars,
		User:           userSvc,
		Pet:            petSvc,
		Device:         deviceSvc,
		Queries:        queries,
		Alert:          alertSvc,
		Analysis:       analysisSvc,
		Ingestion:      ingestionSvc,
		OfflineSweeper: sweeper,
	}, nil
}
