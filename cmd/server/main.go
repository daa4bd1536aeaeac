package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairpad/backend/config"
	"github.com/pairpad/backend/internal/api"
	"github.com/pairpad/backend/internal/db"
	"github.com/pairpad/backend/internal/execute"
	"github.com/pairpad/backend/internal/logger"
	"github.com/pairpad/backend/internal/ratelimit"
	"github.com/pairpad/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr := logger.New(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	logr.Info("starting pairpad server", "env", cfg.Logging.Env, "version", cfg.Logging.Version)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logr.Error("init database", "path", cfg.Database.Path, "err", err)
		os.Exit(1)
	}
	defer database.Close()
	logr.Info("database ready", "path", cfg.Database.Path)

	hub := ws.NewHub(logr, database, cfg.Rooms.MaxRooms)

	reaper := ws.NewReaper(hub, logr, ws.ReaperConfig{
		Interval:    cfg.Rooms.SweepInterval.Std(),
		IdleTimeout: cfg.Rooms.IdleTimeout.Std(),
		Backoff:     time.Minute,
	})
	reaper.Start()
	defer reaper.Stop()

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Std())
	apiHandler := api.New(hub, database, execute.NewRunner(), logr)
	router := api.NewRouter(apiHandler, hub, limiter, logr, cfg.CORSAllow)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logr.Info("shutdown signal", "sig", sig.String())
	case err := <-errCh:
		logr.Error("server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", "err", err)
	}
	logr.Info("stopped")
}
