package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/api"
	"github.com/campaign-insights/backend/internal/web"
)

// serveCmd starts the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and interactive client",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.runCleanup(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg.Server, logger)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:    a.store,
		Sessions: a.sessions,
		Uploads:  a.uploads,
		Router:   a.router,
		MaxFiles: cfg.Upload.MaxFiles,
		Version:  Version,
		Logger:   logger,
	}))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Info("server starting",
		zap.String("addr", s.Addr),
		zap.String("version", Version),
		zap.String("buildTime", BuildTime),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("artifact", a.artifacts.Location()),
		zap.String("lease", cfg.Upload.LeaseBackend))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// runCleanup periodically closes idle DuckDB stores and forgets old batches.
func (a *app) runCleanup(ctx context.Context) {
	interval := time.Duration(a.cfg.Upload.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	retention := time.Duration(a.cfg.Upload.BatchRetentionMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sessions.CloseIdleStores(interval)
			if n := a.uploads.CleanupOldBatches(retention); n > 0 {
				a.logger.Debug("removed old upload batches", zap.Int("count", n))
			}
		}
	}
}
