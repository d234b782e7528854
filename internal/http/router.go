package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/pawsense/pawsense-backend/internal/http/handlers"
	httpMW "github.com/pawsense/pawsense-backend/internal/http/middleware"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	TraceHTTP   bool

	AuthMiddleware *httpMW.AuthMiddleware

	HardwareHandler *httpH.HardwareHandler
	SessionHandler  *httpH.SessionHandler
	AnalysisHandler *httpH.AnalysisHandler
	AlertHandler    *httpH.AlertHandler
	DeviceHandler   *httpH.DeviceHandler
	PetHandler      *httpH.PetHandler
	UserHandler     *httpH.UserHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
	}
	if cfg.TraceHTTP {
		r.Use(otelgin.Middleware("pawsense-backend"))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Hardware ingest (device-key, user token, or open, per config)
	hardware := api.Group("/hardware")
	{
		if cfg.AuthMiddleware != nil {
			hardware.Use(cfg.AuthMiddleware.DeviceAuth())
		}
		if cfg.HardwareHandler != nil {
			hardware.POST("/sensor-data", cfg.HardwareHandler.IngestSensorData)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireUser())
		}

		// Profile
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.PATCH("/me", cfg.UserHandler.UpdateProfile)
			protected.PATCH("/me/avatar_color", cfg.UserHandler.ChangeAvatarColor)
			protected.POST("/me/avatar/upload", cfg.UserHandler.UploadAvatar)
		}

		// Pets
		if cfg.PetHandler != nil {
			protected.POST("/pets", cfg.PetHandler.CreatePet)
			protected.GET("/pets", cfg.PetHandler.ListPets)
			protected.GET("/pets/:id", cfg.PetHandler.GetPet)
			protected.PATCH("/pets/:id", cfg.PetHandler.UpdatePet)
			protected.DELETE("/pets/:id", cfg.PetHandler.DeletePet)
			protected.POST("/pets/:id/avatar/upload", cfg.PetHandler.UploadPetAvatar)
		}

		// Devices
		if cfg.DeviceHandler != nil {
			protected.POST("/devices", cfg.DeviceHandler.RegisterDevice)
			protected.GET("/devices", cfg.DeviceHandler.ListDevices)
			protected.GET("/devices/:id", cfg.DeviceHandler.GetDevice)
			protected.PATCH("/devices/:id/status", cfg.DeviceHandler.UpdateDeviceStatus)
			protected.POST("/devices/:id/bind", cfg.DeviceHandler.BindDevice)
			protected.POST("/devices/:id/unbind", cfg.DeviceHandler.UnbindDevice)
		}

		// Sensor sessions
		if cfg.SessionHandler != nil {
			protected.GET("/sensor-sessions", cfg.SessionHandler.ListSessions)
			protected.GET("/sensor-sessions/:id", cfg.SessionHandler.GetSession)
		}

		// Analysis
		if cfg.AnalysisHandler != nil {
			protected.GET("/analysis", cfg.AnalysisHandler.ListAnalyses)
			protected.GET("/analysis/latest", cfg.AnalysisHandler.LatestAnalysis)
			protected.POST("/analysis/:sessionId", cfg.AnalysisHandler.TriggerAnalysis)
		}

		// Alerts
		if cfg.AlertHandler != nil {
			protected.GET("/alerts", cfg.AlertHandler.ListAlerts)
			protected.POST("/alerts/:id/read", cfg.AlertHandler.MarkRead)
			protected.POST("/alerts/:id/resolve", cfg.AlertHandler.ResolveAlert)
		}
	}

	return r
}
