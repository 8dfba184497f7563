package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/db"
	"github.com/mnemora/mnemora-backend/internal/observability"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)
	observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "mnemora-backend",
		Environment: cfg.Env,
	})

	dbService, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	gdb := dbService.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(gdb, log)

	serviceset, err := wireServices(context.Background(), log, cfg, clientset, reposet)
	if err != nil {
		clientset.Close(context.Background())
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           gdb,
		Cfg:          cfg,
		Clients:      clientset,
		Repos:        reposet,
		Services:     serviceset,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers: the jobs runner and, when metrics
// are enabled, the store gauge collector.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobRunner != nil {
		a.Services.JobRunner.Start(ctx)
	}
	observability.Current().StartStoreCollector(ctx, a.Log, a.DB)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx := context.Background()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobRunner != nil {
		a.Services.JobRunner.Close()
	}
	a.Clients.Close(ctx)
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
