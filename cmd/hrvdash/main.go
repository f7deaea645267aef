package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomgoth/hrv-dashboard/internal/config"
	"github.com/tomgoth/hrv-dashboard/internal/logging"
	"github.com/tomgoth/hrv-dashboard/pkg/api"
	"github.com/tomgoth/hrv-dashboard/pkg/dashboard"
	"github.com/tomgoth/hrv-dashboard/pkg/feed"
	"github.com/tomgoth/hrv-dashboard/pkg/metrics"
	"github.com/tomgoth/hrv-dashboard/pkg/storage"
)

const (
	version = "0.3.0"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	fmt.Printf("HRV Dashboard v%s\n", version)
	fmt.Println("Heart rate variability trends over day, week, month and year")
	fmt.Println()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	loc, _ := cfg.Location()

	logger.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Feed.BaseURI,
		"initial_duration", cfg.Dashboard.InitialDuration,
		"location", loc.String(),
		"compression_level", cfg.Storage.CompressionLevel,
	)

	// Initialize storage
	logger.Info("initializing storage engine")
	store, err := storage.NewStorage(cfg.ToStorageConfig())
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	cached := storage.NewCachedStorage(store, cfg.Cache.Capacity, cfg.Cache.TTL, m)

	ctrl := dashboard.NewController(
		dashboard.WithPadding(cfg.Dashboard.Padding),
		dashboard.WithInitialDuration(cfg.InitialDuration()),
		dashboard.WithQuantiles(cfg.Dashboard.Quantiles...),
	)

	// Create API server
	server := api.NewServer(cfg.Server.ListenAddr, cached, ctrl, api.Options{
		Timeout:   cfg.Server.Timeout,
		Metrics:   m,
		Logger:    logger.With("component", "api"),
		AccessLog: logging.AccessLog(logger),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fetch the series in the background; the API reports loading until then
	go func() {
		client := feed.New(cfg.Feed.BaseURI, cfg.Feed.Timeout, m)
		if err := server.Load(ctx, client, cfg.Feed.RetryInterval, loc); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("failed to load series", "error", err)
		}
	}()

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping server")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped successfully")
}
