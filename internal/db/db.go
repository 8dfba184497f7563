package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mnemora/mnemora-backend/internal/domain/jobs"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

// Service owns the relational store handle. The driver is selected by
// DB_DRIVER ("postgres" or "sqlite"); sqlite keeps the service runnable
// without any external infrastructure.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "db")

	driver := strings.ToLower(envutil.Str("DB_DRIVER", "postgres"))

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch driver {
	case "postgres":
		gdb, err = openPostgres(cfg)
	case "sqlite":
		gdb, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}

	serviceLog.Info("relational store connected", "driver", driver)
	return &Service{db: gdb, log: serviceLog}, nil
}

func openPostgres(cfg *gorm.Config) (*gorm.DB, error) {
	dsn := envutil.Str("POSTGRES_DSN", "")
	if dsn == "" {
		host := envutil.Str("POSTGRES_HOST", "localhost")
		port := envutil.Str("POSTGRES_PORT", "5432")
		user := envutil.Str("POSTGRES_USER", "postgres")
		password := envutil.Str("POSTGRES_PASSWORD", "")
		name := envutil.Str("POSTGRES_NAME", "mnemora")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
	}

	gdb, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}
	return gdb, nil
}

func openSQLite(cfg *gorm.Config) (*gorm.DB, error) {
	path := envutil.Str("SQLITE_PATH", "mnemora.db")
	gdb, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}
	// Single writer at a time keeps gorm's connection pool from tripping
	// over sqlite's database-level lock.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrateAll creates or updates the schema for every persisted type.
func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&memory.Memory{},
		&jobs.AnalysisJob{},
		&jobs.AnalysisResult{},
	)
}
