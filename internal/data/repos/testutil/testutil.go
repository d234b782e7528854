package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pawsense/pawsense-backend/internal/data/db"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var sharedLogger = sync.OnceValues(func() (*logger.Logger, error) {
	return logger.New("test")
})

var sharedDB = sync.OnceValues(openTestDB)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := sharedLogger()
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return log
}

// DB returns a connection to the schema named by TEST_POSTGRES_DSN, shared
// across the package's tests and migrated once. Tests are skipped when no
// DSN is set.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := sharedDB()
	if errors.Is(err, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	return gdb
}

func openTestDB() (*gorm.DB, error) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		return nil, errMissingDSN
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, err
	}

	// The real migration pass, so the partial unique indexes the ingestion
	// and analysis paths rely on exist in the test schema too.
	if err := db.AutoMigrateAll(gdb); err != nil {
		return nil, err
	}
	if err := db.EnsureRegistryIndexes(gdb); err != nil {
		return nil, err
	}
	return gdb, db.EnsureTelemetryIndexes(gdb)
}

// Tx opens a transaction that rolls back when the test finishes, so
// integration tests never leak rows into the shared schema.
func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
