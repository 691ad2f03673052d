package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/trackarr/internal/api"
	"github.com/amaumene/trackarr/internal/config"
	"github.com/amaumene/trackarr/internal/controllers"
	"github.com/amaumene/trackarr/internal/models"
	"github.com/amaumene/trackarr/internal/scheduler"
	"github.com/amaumene/trackarr/internal/services/tmdb"
	"github.com/amaumene/trackarr/internal/services/trakt"
	"github.com/amaumene/trackarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Trackarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize remote clients
	traktClient, err := trakt.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Trakt client: %w", err)
	}
	logger.Info("Trakt client initialized")

	// Offer device authentication when no token is on file. Everything keeps
	// working locally without it; remote sync simply stays off.
	if !traktClient.IsAuthenticated() {
		logger.Info("No Trakt session, starting device authentication")
		if err := traktClient.Authenticate(context.Background()); err != nil {
			logger.WithError(err).Warn("Trakt authentication failed, running in local-only mode")
		}
	}

	tmdbClient := tmdb.NewClient(cfg, traktClient.ShowIDs, logger)
	logger.Info("TMDB client initialized")

	// 5. Initialize controllers
	refresh := controllers.NewRefreshPolicy(db)
	syncCtrl := controllers.NewSyncController(db, traktClient, tmdbClient, traktClient, traktClient, refresh, logger)
	episodeCtrl := controllers.NewEpisodeController(db, syncCtrl, refresh, logger)
	logger.Info("Controllers initialized")

	// 6. Initialize scheduler
	sched := scheduler.NewScheduler(episodeCtrl, syncCtrl, db, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, db, episodeCtrl, syncCtrl, traktClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Trackarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Trackarr stopped")
	return nil
}
