package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/db"
	"github.com/yungbote/undercurrent-backend/internal/http"
	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

const serviceName = "undercurrent-backend"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Catalog  *catalog.Catalog
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	server       *http.Server
	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
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

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	theDB, err := db.Open(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	cat := catalog.Default()

	clients, err := wireClients(context.Background(), log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(log, cfg, cat, reposet, clients)
	handlerset := wireHandlers(log, theDB, cat, serviceset)
	middleware := wireMiddleware(log, serviceset)
	router := wireRouter(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Catalog:      cat,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		server:       http.NewServer(log, ":"+cfg.Port, router),
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Pending canvas edits and voice archives are written before exit.
	if a.Services.Canvas != nil {
		if err := a.Services.Canvas.Close(ctx); err != nil {
			a.Log.Warn("Flushing canvas edits on shutdown failed", "error", err)
		}
	}
	if a.Services.Transcription != nil {
		a.Services.Transcription.Wait()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
