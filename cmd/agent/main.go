package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Floopatron/donk-project/internal/agent"
	"github.com/Floopatron/donk-project/internal/config"
	"github.com/Floopatron/donk-project/internal/plugin"

	_ "github.com/Floopatron/donk-project/internal/plugin/builtin/youtube"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	hubURL := flag.String("hub-url", "", "hub websocket URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *hubURL != "" {
		cfg.Agent.HubURL = *hubURL
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Starting Donk collector agent",
		"hub_url", cfg.Agent.HubURL,
		"plugin_dir", cfg.Plugins.Directory,
	)

	registry := plugin.NewRegistry(cfg.Plugins.Directory, plugin.Sensors, logger)
	if err := registry.LoadAll(); err != nil {
		logger.Error("Failed to load sensor plugins", "error", err)
	}

	collector, err := agent.NewCollector(agent.Options{
		HubURL:            cfg.Agent.HubURL,
		DeviceID:          cfg.Agent.DeviceID,
		HeartbeatInterval: cfg.Agent.GetHeartbeatInterval(),
		TickInterval:      cfg.Agent.GetAggregatorTickInterval(),
	}, registry, logger)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down collector...")
		cancel()
	}()

	if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Collector exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Collector stopped gracefully")
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
