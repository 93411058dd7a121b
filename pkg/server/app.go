package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/internal/usecase"
	"BarSync/pkg/config"
	xhttp "BarSync/pkg/http"
	applogger "BarSync/pkg/logger"
)

// App owns the wired components and exposes one method per CLI command.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	store   drepo.BarStore
	sync    *usecase.SyncOrchestrator
	audit   *usecase.AuditScanner
	events  drepo.EventPublisher
	handler xhttp.Handler

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	store drepo.BarStore,
	sync *usecase.SyncOrchestrator,
	audit *usecase.AuditScanner,
	events drepo.EventPublisher,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		sync:    sync,
		audit:   audit,
		events:  events,
		handler: handler,
	}
}

func (a *App) Logger() *applogger.Logger { return a.log }

// InitSchema creates the bar table and the change view.
func (a *App) InitSchema(ctx context.Context) error {
	if err := a.store.InitSchema(ctx); err != nil {
		if !errors.Is(err, models.ErrSchemaSetup) {
			err = fmt.Errorf("%w: %w", models.ErrSchemaSetup, err)
		}
		return err
	}
	return nil
}

// RunSync ensures the schema exists, then runs one sync pass.
func (a *App) RunSync(ctx context.Context, req usecase.RunRequest) (*models.RunReport, error) {
	if err := a.InitSchema(ctx); err != nil {
		return nil, err
	}
	return a.sync.Run(ctx, req)
}

// RunAudit runs one QC scan.
func (a *App) RunAudit(ctx context.Context, threshold time.Duration) (*models.AuditReport, error) {
	return a.audit.Scan(ctx, threshold)
}

// StartServer starts the ops server without blocking.
func (a *App) StartServer() error {
	if a.httpServer != nil {
		return nil
	}
	a.httpServer = xhttp.NewServer(a.handler, a.log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	return a.httpServer.Start()
}

// Serve runs the ops server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if err := a.StartServer(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return nil
}

// Close stops the server and flushes publishers. Store and client pools are
// released by the DI cleanup.
func (a *App) Close() error {
	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(context.Background()); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
		a.httpServer = nil
	}
	// the collector publishes through the event producer; flush it first
	a.log.RemoveCollector()
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
