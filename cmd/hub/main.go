package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Floopatron/donk-project/internal/api"
	"github.com/Floopatron/donk-project/internal/config"
	"github.com/Floopatron/donk-project/internal/hub"
	"github.com/Floopatron/donk-project/internal/plugin"
	"github.com/Floopatron/donk-project/internal/session"
	"github.com/Floopatron/donk-project/internal/store"

	_ "github.com/Floopatron/donk-project/internal/plugin/builtin/youtube"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Starting Donk hub",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"plugin_dir", cfg.Plugins.Directory,
	)

	registry := plugin.NewRegistry(cfg.Plugins.Directory, plugin.Renderers, logger)
	if err := registry.LoadAll(); err != nil {
		logger.Error("Failed to load renderer plugins", "error", err)
	}

	sessions := session.NewTable()
	contextStore := store.NewContextStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := hub.New(sessions, contextStore, registry, logger)
	go relay.Run(ctx)

	router := api.NewRouter(&api.Dependencies{
		Sessions: sessions,
		Store:    contextStore,
		Registry: registry,
		Hub:      relay,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down hub...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Hub stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
