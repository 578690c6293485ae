package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "tracker_suite/internal/interfaces/http"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				return serve(ctx, a, !skipMigrate)
			})
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not create or update the schema on startup")
	return cmd
}

func serve(ctx context.Context, a *app, migrate bool) error {
	log := a.log

	if migrate {
		if err := a.db.Migrate(ctx); err != nil {
			return err
		}
	}
	if a.cfg.MasterAdminEmail != "" {
		if err := a.services.Auth.EnsureMasterAdmin(ctx, a.cfg.MasterAdminEmail, a.cfg.MasterAdminPassword); err != nil {
			log.Warn("Failed to ensure master admin", zap.Error(err))
		}
	}

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(a.handler(), a.middleware(), a.registry)

	var wg sync.WaitGroup
	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	a.dispatcher.Start()
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.retryWorker.Run(workersCtx)
	}()
	go func() {
		defer wg.Done()
		a.limiter.Run(workersCtx)
	}()
	if err := a.monitor.Start(workersCtx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-errCh:
		log.Error("HTTP server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server did not drain in time", zap.Error(err))
	}
	cancelWorkers()
	a.monitor.Stop()
	a.dispatcher.Stop(shutdownCtx)
	wg.Wait()

	log.Info("Shutdown complete")
	return serveErr
}
