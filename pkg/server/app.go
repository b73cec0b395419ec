package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/repository"
	pkgch "github.com/Alwyn-Tan/dma-strategy-backend/pkg/clickhouse"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/config"
	xhttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	applogger "github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/queue"
)

// App encapsulates the entire application lifecycle: HTTP API, the
// optional queue worker and the optional ClickHouse mirror.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	handler     xhttp.Handler
	httpServer  *xhttp.Server
	chClient    *pkgch.Client
	signalStore *repository.SignalStore
	worker      *queue.RedisQueue
}

// New creates a new App instance. The ClickHouse client, signal store
// and queue worker may be nil when those subsystems are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	signalStore *repository.SignalStore,
	worker *queue.RedisQueue,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		handler:     handler,
		chClient:    chClient,
		signalStore: signalStore,
		worker:      worker,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.signalStore != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.signalStore.InitSchema(initCtx)
		initCancel()
		if err != nil {
			return err
		}
		a.log.Info("clickhouse schema ready")
	}

	if a.worker != nil {
		// Start also launches the retry processor for consumer modes.
		if err := a.worker.Start(); err != nil {
			return err
		}
		a.log.Info("queue worker started")
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("api server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.worker != nil {
		if err := a.worker.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue worker stop error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
