package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pawsense/pawsense-backend/internal/platform/envutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// PoolConfig is assembled by the app at startup and injected here; the store
// never reads pool sizing from ambient env on its own.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(logg *logger.Logger, pool PoolConfig) (*PostgresService, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		postgresHost := envutil.GetEnv("POSTGRES_HOST", "localhost", logg)
		postgresPort := envutil.GetEnv("POSTGRES_PORT", "5432", logg)
		postgresUser := envutil.GetEnv("POSTGRES_USER", "postgres", logg)
		postgresPassword := envutil.GetEnv("POSTGRES_PASSWORD", "", logg)
		postgresName := envutil.GetEnv("POSTGRES_NAME", "pawsense", logg)

		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			postgresUser,
			postgresPassword,
			postgresHost,
			postgresPort,
			postgresName,
		)
	}

	// Only slow queries and real errors reach the log; not-found is an
	// expected outcome on the read paths.
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp: %w", err)
	}

	return &PostgresService{db: db, log: logg.With("service", "PostgresService")}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }
