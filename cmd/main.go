package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitconnect/internal/api"
	"fitconnect/internal/calendar"
	"fitconnect/internal/clock"
	"fitconnect/internal/config"
	"fitconnect/internal/diagnostics"
	"fitconnect/internal/fitblocks"
	"fitconnect/internal/schedule"
	"fitconnect/internal/setup"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("FITCONNECT_CONFIG")
	if configPath == "" {
		configPath = "fitconnect.yaml"
	}

	cfg, err := config.NewLoader(configPath, logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	loc := cfg.Location(logger)
	client := fitblocks.NewClient(fitblocks.Config{
		BaseURL:  cfg.BaseURL,
		Box:      cfg.Box,
		Username: cfg.Username,
		Password: cfg.Password,
	}, loc, logger)

	// One-shot credential validation before anything else runs.
	validateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	result, err := setup.Validate(validateCtx, client, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Credential validation failed", zap.Error(err))
	}
	logger.Info("Connected to Fitblocks",
		zap.String("title", result.Title),
		zap.String("display_name", result.DisplayName))

	clk := clock.NewRealClock()
	coordinator := schedule.NewCoordinator(client, clk, loc, logger)

	view := &calendar.View{
		Location:          result.Title,
		FallbackFirstName: firstWord(result.DisplayName),
	}

	server := api.NewServer(cfg.ListenAddr, coordinator, client, view, clk, func() any {
		return diagnostics.Collect(cfg, coordinator, client)
	}, logger)

	// Initial refresh so entities have data before the first tick.
	refresh := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := coordinator.Refresh(ctx); err != nil {
			logger.Error("Schedule refresh failed", zap.Error(err))
		}
	}
	refresh()

	scheduler := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.RefreshInterval)
	if _, err := scheduler.AddFunc(spec, refresh); err != nil {
		logger.Fatal("Failed to schedule periodic refresh", zap.Error(err))
	}
	scheduler.Start()

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Fitconnect running",
		zap.String("listen", cfg.ListenAddr),
		zap.Duration("refresh_interval", cfg.RefreshInterval))

	<-sigChan

	logger.Info("Shutting down gracefully...")
	scheduler.Stop()
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}
