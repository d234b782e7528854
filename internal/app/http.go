package app

import (
	"github.com/gin-gonic/gin"

	"github.com/pawsense/pawsense-backend/internal/http"
	httpH "github.com/pawsense/pawsense-backend/internal/http/handlers"
	httpMW "github.com/pawsense/pawsense-backend/internal/http/middleware"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Hardware *httpH.HardwareHandler
	Session  *httpH.SessionHandler
	Analysis *httpH.AnalysisHandler
	Alert    *httpH.AlertHandler
	Device   *httpH.DeviceHandler
	Pet      *httpH.PetHandler
	User     *httpH.UserHandler
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.TokenVerifier, services.Device, cfg.AllowAnonymousIngest),
	}
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Hardware: httpH.NewHardwareHandler(log, services.Ingestion),
		Session:  httpH.NewSessionHandler(log, services.Queries),
		Analysis: httpH.NewAnalysisHandler(log, services.Queries, services.Analysis),
		Alert:    httpH.NewAlertHandler(log, services.Alert),
		Device:   httpH.NewDeviceHandler(log, services.Device),
		Pet:      httpH.NewPetHandler(log, services.Pet),
		User:     httpH.NewUserHandler(log, services.User),
	}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSAllowOrigins,
		TraceHTTP:   observability.TracingEnabled(),

		AuthMiddleware: middleware.Auth,

		HealthHandler:   handlers.Health,
		HardwareHandler: handlers.Hardware,
		SessionHandler:  handlers.Session,
		AnalysisHandler: handlers.Analysis,
		AlertHandler:    handlers.Alert,
		DeviceHandler:   handlers.Device,
		PetHandler:      handlers.Pet,
		UserHandler:     handlers.User,
	})
}
