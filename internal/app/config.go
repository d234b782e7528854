package app

import (
	"strings"
	"time"

	"github.com/pawsense/pawsense-backend/internal/data/db"
	"github.com/pawsense/pawsense-backend/internal/platform/envutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	JWTSecretKey         string
	AllowAnonymousIngest bool
	CORSAllowOrigins     []string

	// RulesConfigPath points at the YAML file shared by the alert rule
	// thresholds and the analysis options. Empty keeps compiled defaults.
	RulesConfigPath string

	Pool db.PoolConfig

	Analysis services.AnalysisConfig

	MetricsListenAddr string
}

func LoadConfig(log *logger.Logger) Config {
	port := envutil.GetEnv("PORT", "8080", log)
	environment := envutil.GetEnv("APP_ENV", "development", log)
	version := envutil.GetEnv("APP_VERSION", "", log)

	jwtSecretKey := envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	allowAnonymous := envutil.GetEnvAsBool("INGEST_ALLOW_ANONYMOUS", true, log)
	corsOrigins := splitOrigins(envutil.GetEnv("CORS_ALLOW_ORIGINS", "*", log))

	rulesPath := strings.TrimSpace(envutil.GetEnv("RULES_CONFIG_PATH", "", log))

	pool := db.PoolConfig{
		MaxOpenConns:    envutil.GetEnvAsInt("DB_MAX_OPEN_CONNS", 25, log),
		MaxIdleConns:    envutil.GetEnvAsInt("DB_MAX_IDLE_CONNS", 10, log),
		ConnMaxLifetime: time.Duration(envutil.GetEnvAsInt("DB_CONN_MAX_LIFETIME_SECONDS", 1800, log)) * time.Second,
	}

	metricsAddr := envutil.GetEnv("METRICS_LISTEN_ADDR", ":9091", log)

	return Config{
		Port:                 port,
		Environment:          environment,
		Version:              version,
		JWTSecretKey:         jwtSecretKey,
		AllowAnonymousIngest: allowAnonymous,
		CORSAllowOrigins:     corsOrigins,
		RulesConfigPath:      rulesPath,
		Pool:                 pool,
		Analysis:             services.AnalysisConfigFromEnv(log),
		MetricsListenAddr:    metricsAddr,
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
