package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a shared test database. With TEST_POSTGRES_DSN set it connects
// to Postgres; otherwise it falls back to a throwaway sqlite file so repo
// tests run without external infrastructure.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn != "" {
			db, dbErr = openPostgres(dsn)
			return
		}
		db, dbErr = openSQLite()
	})
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

// Tx begins a transaction that rolls back when the test finishes, keeping
// the shared database clean between tests.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func openPostgres(dsn string) (*gorm.DB, error) {
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
	if err := autoMigrateAll(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func openSQLite() (*gorm.DB, error) {
	dir, err := os.MkdirTemp("", "mnemora-test-*")
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := autoMigrateAll(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func autoMigrateAll(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&memory.Memory{},
		&jobs.AnalysisJob{},
		&jobs.AnalysisResult{},
	); err != nil {
		return errors.Join(errors.New("auto-migrate test schema"), err)
	}
	return nil
}
