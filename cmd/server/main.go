package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rutinasds/routines-app/internal/api"
	"rutinasds/routines-app/internal/app"
	"rutinasds/routines-app/internal/config"
)

// @title Gym Routines API
// @version 1.0
// @description Catalog synchronization, routine snapshots, plans, executions and measurements.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	logger := app.NewLogger(cfg.Log, os.Stdout)
	logger.Info("starting routines server", "address", cfg.Server.Address, "database", cfg.Database.Driver, "audit", cfg.Audit.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	router := api.NewRouter(engine.Services, cfg.Server.Mode, api.RequestLogger(logger))

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.Info("server listening", "address", cfg.Server.Address)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("listen failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	// Give in-flight requests ShutdownTimeout to finish.
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server exiting")
}
