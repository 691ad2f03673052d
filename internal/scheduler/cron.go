package scheduler

import (
	"context"
	"fmt"

	"github.com/amaumene/trackarr/internal/controllers"
	"github.com/amaumene/trackarr/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the periodic reconciliation jobs
type Scheduler struct {
	cron        *cron.Cron
	episodeCtrl *controllers.EpisodeController
	syncCtrl    *controllers.SyncController
	db          *models.Database
	logger      *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(
	episodeCtrl *controllers.EpisodeController,
	syncCtrl *controllers.SyncController,
	db *models.Database,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		episodeCtrl: episodeCtrl,
		syncCtrl:    syncCtrl,
		db:          db,
		logger:      logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Every hour: quick watch-history sync per show. The staleness gate makes
	// this a no-op when something else already synced recently.
	_, err := s.cron.AddFunc("0 * * * *", func() {
		s.runWatchSync()
	})
	if err != nil {
		return fmt.Errorf("failed to add watch sync job: %w", err)
	}

	// Every 15 minutes: retry pending uploads/deletes left behind by failed
	// remote calls
	_, err = s.cron.AddFunc("*/15 * * * *", func() {
		s.runPendingDrain()
	})
	if err != nil {
		return fmt.Errorf("failed to add pending drain job: %w", err)
	}

	// Daily: season/episode metadata refresh, gated by the 7 day expiry
	_, err = s.cron.AddFunc("0 4 * * *", func() {
		s.runMetadataRefresh()
	})
	if err != nil {
		return fmt.Errorf("failed to add metadata refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run an initial pass immediately
	go func() {
		s.runMetadataRefresh()
		s.runWatchSync()
	}()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) runWatchSync() {
	ctx := context.Background()
	showIDs, err := s.db.ListShowIDs()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list shows")
		return
	}

	for _, showID := range showIDs {
		lastKnown, err := s.db.NewestConfirmedWatch(showID)
		if err != nil {
			s.logger.WithError(err).WithField("show_id", showID).Error("Failed to read newest watch")
			continue
		}
		if err := s.episodeCtrl.UpdateShowWatchesIfNeeded(ctx, showID, models.SyncModeQuick, false, lastKnown); err != nil {
			s.logger.WithError(err).WithField("show_id", showID).Error("Watch sync failed")
		}
	}
}

func (s *Scheduler) runPendingDrain() {
	ctx := context.Background()
	showIDs, err := s.db.ListShowIDs()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list shows")
		return
	}

	for _, showID := range showIDs {
		if err := s.syncCtrl.DrainShow(ctx, showID); err != nil {
			s.logger.WithError(err).WithField("show_id", showID).Error("Pending drain failed")
		}
	}
}

func (s *Scheduler) runMetadataRefresh() {
	ctx := context.Background()
	showIDs, err := s.db.ListShowIDs()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list shows")
		return
	}

	for _, showID := range showIDs {
		if err := s.episodeCtrl.UpdateSeasonsEpisodes(ctx, showID); err != nil {
			s.logger.WithError(err).WithField("show_id", showID).Error("Metadata refresh failed")
		}
	}
}
