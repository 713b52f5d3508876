package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sportarr/internal/clients/notifications"
	"sportarr/internal/config"
	"sportarr/internal/core"
	"sportarr/internal/database"
	"sportarr/internal/handlers"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg.App.LogLevel)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	manager := core.NewManager(cfg, db)

	hub := handlers.NewHub()
	manager.SetPublisher(hub.Publish)

	if key := cfg.Notifications.PushbulletAPIKey; key != "" {
		manager.SetNotifier(notifications.NewPushbulletClient(key))
		log.Info().Msg("pushbullet notifications enabled")
	}

	// Reload the config file on change. Timeouts and policies picked up at
	// construction keep their old values until restart; only the logging
	// level applies immediately.
	watcher, err := config.NewWatcher(*configPath, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable, live reload disabled")
	} else {
		watcher.OnReload(func(fresh *config.Config) {
			setupLogging(fresh.App.LogLevel)
		})
		defer watcher.Close()
	}

	server := handlers.NewServer(cfg, manager, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	if err := manager.StartScheduler(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	log.Info().Int("port", cfg.App.Port).Msg("sportarr started")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	manager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown failed")
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
