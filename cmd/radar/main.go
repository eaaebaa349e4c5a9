package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dex-radar/internal/alert"
	"dex-radar/internal/api"
	"dex-radar/internal/config"
	"dex-radar/internal/provider"
	"dex-radar/internal/score"
	"dex-radar/internal/stream"
	"dex-radar/internal/store"
	"dex-radar/internal/track"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting dex-radar", "chain", cfg.Chain, "config", *configPath)

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		logger.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	prov := provider.NewHTTP(*cfg, logger)
	streams := stream.NewManager(prov, cfg.Stream.MaxConnections, cfg.Stream.Stagger, cfg.Stream.MaxBackoff, logger)
	scorer := score.New()
	notifier := alert.New(cfg.Alert, logger)
	if !notifier.Enabled() {
		logger.Info("alert sink disabled")
	}

	hub := api.NewHub(logger)
	go hub.Run()

	tracker := track.New(cfg, prov, streams, scorer, st, notifier, hub, logger)
	if err := tracker.Start(); err != nil {
		logger.Error("start tracker failed", "error", err)
		os.Exit(1)
	}

	var server *api.Server
	if cfg.Dashboard.Enabled {
		server = api.NewServer(fmt.Sprintf(":%d", cfg.Dashboard.Port), tracker, hub, logger)
		server.Start()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
		cancel()
	}
	tracker.Stop()
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
