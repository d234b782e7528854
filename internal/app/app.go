package app

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/db"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	log, err := logger.New(cmp.Or(os.Getenv("LOG_MODE"), "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	// Every failure below flushes the logger before handing the error up.
	fail := func(err error) (*App, error) {
		log.Sync()
		return nil, err
	}

	log.Info("loading configuration")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log, cfg.Pool)
	if err != nil {
		return fail(fmt.Errorf("init postgres: %w", err))
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return fail(fmt.Errorf("postgres automigrate: %w", err))
	}
	gdb := pg.DB()

	clients, err := wireClients(log)
	if err != nil {
		return fail(err)
	}

	reposet := wireRepos(gdb, log)

	serviceset, err := wireServices(gdb, log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		return fail(err)
	}

	handlerset := wireHandlers(log, serviceset)
	middleware := wireMiddleware(log, cfg, serviceset)
	router := wireRouter(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       gdb,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Clients:  clients,
		Services: serviceset,
		Metrics:  metrics,
	}, nil
}

// Start launches the background side of the app: tracing, the metrics
// listener and collectors, the analysis worker pool, and the offline sweeper.
// The HTTP listener is Run's job. Calling Start twice is a no-op.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "pawsense-backend",
		Environment: a.Cfg.Environment,
		Version:     a.Cfg.Version,
	})

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsListenAddr)
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartRedisCollector(ctx, a.Log, os.Getenv("REDIS_ADDR"))
		a.Metrics.StartDeviceStatusCollector(ctx, a.Log, a.DB)
		a.Metrics.StartSLOEvaluator(ctx, a.Log)
	}

	if a.Services.Analysis != nil {
		a.Services.Analysis.Start(ctx)
	}
	if a.Services.OfflineSweeper != nil {
		a.Services.OfflineSweeper.Start(ctx)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Analysis != nil {
		a.Services.Analysis.Stop()
	}
	if a.Services.OfflineSweeper != nil {
		a.Services.OfflineSweeper.Stop()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
		a.otelShutdown = nil
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
