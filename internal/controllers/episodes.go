package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// EpisodeController is the public surface the rest of the application talks
// to. Reads go straight to storage. Mutations write locally first, so callers
// see the change immediately, and then drain the pending queue for the
// affected scope; remote propagation failures only show up as entries left
// pending, retried on the next drain.
type EpisodeController struct {
	db      *models.Database
	sync    *SyncController
	refresh *RefreshPolicy
	logger  *logrus.Logger
	now     func() time.Time
}

// NewEpisodeController creates a new episode controller
func NewEpisodeController(db *models.Database, sync *SyncController, refresh *RefreshPolicy, logger *logrus.Logger) *EpisodeController {
	return &EpisodeController{
		db:      db,
		sync:    sync,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

// Seasons returns a show's locally-known seasons
func (c *EpisodeController) Seasons(showID uint64) ([]*models.Season, error) {
	return c.db.GetSeasonsForShow(showID)
}

// Episodes returns a season's locally-known episodes
func (c *EpisodeController) Episodes(seasonID uint64) ([]*models.Episode, error) {
	return c.db.GetEpisodesBySeason(seasonID)
}

// Episode returns one locally-known episode
func (c *EpisodeController) Episode(episodeID uint64) (*models.Episode, error) {
	return c.db.GetEpisode(episodeID)
}

// Watches returns an episode's watch entries, pending ones included
func (c *EpisodeController) Watches(episodeID uint64) ([]*models.EpisodeWatch, error) {
	return c.db.GetWatchesForEpisode(episodeID)
}

// UpdateSeasonsEpisodes refreshes a show's season metadata when it is stale
func (c *EpisodeController) UpdateSeasonsEpisodes(ctx context.Context, showID uint64) error {
	if !c.refresh.IsStale(models.SeasonScope(showID), DefaultSeasonExpiry) {
		return nil
	}
	return c.sync.RefreshSeasonsEpisodes(ctx, showID)
}

// UpdateEpisode refreshes one episode's metadata when it is stale. The sync
// controller owns the refresh marker, so a skipped refresh stays stale.
func (c *EpisodeController) UpdateEpisode(ctx context.Context, episodeID uint64) error {
	if !c.refresh.IsStale(models.EpisodeScope(episodeID), DefaultSeasonExpiry) {
		return nil
	}
	return c.sync.RefreshEpisode(ctx, episodeID)
}

// UpdateShowWatchesIfNeeded syncs a show's watch history, gated by staleness
// unless forced. lastKnown is the newest remote watch time already absorbed
// locally and enables the quick-mode delta fetch.
func (c *EpisodeController) UpdateShowWatchesIfNeeded(ctx context.Context, showID uint64, mode models.SyncMode, force bool, lastKnown *time.Time) error {
	return c.sync.SyncShowWatches(ctx, showID, mode, force, lastKnown)
}

// RemoveShow drops a show from the library, seasons, episodes and watch
// entries included. Purely local; remote history is untouched.
func (c *EpisodeController) RemoveShow(showID uint64) error {
	if err := c.db.DeleteAllForShow(showID); err != nil {
		return fmt.Errorf("failed to remove show %d: %w", showID, err)
	}
	c.logger.WithField("show_id", showID).Info("Removed show from library")
	return nil
}

// MarkEpisodeWatched records a watch for an episode at the given time
func (c *EpisodeController) MarkEpisodeWatched(ctx context.Context, episodeID uint64, at time.Time) error {
	episode, err := c.db.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("episode %d not known locally: %w", episodeID, err)
	}

	watch := &models.EpisodeWatch{
		EpisodeID:     episode.ID,
		ShowID:        episode.ShowID,
		WatchedAt:     at,
		PendingAction: models.PendingUpload,
	}
	if err := c.db.CreateWatches([]*models.EpisodeWatch{watch}); err != nil {
		return fmt.Errorf("failed to save watch entry: %w", err)
	}

	c.drainEpisode(ctx, episodeID)
	return nil
}

// MarkEpisodeUnwatched removes all watches of an episode, propagating the
// removal remotely where one was ever confirmed
func (c *EpisodeController) MarkEpisodeUnwatched(ctx context.Context, episodeID uint64) error {
	watches, err := c.db.GetWatchesForEpisode(episodeID)
	if err != nil {
		return err
	}
	if err := c.unwatchEntries(watches); err != nil {
		return err
	}

	c.drainEpisode(ctx, episodeID)
	return nil
}

// RemoveWatchEntry removes one specific watch entry
func (c *EpisodeController) RemoveWatchEntry(ctx context.Context, watchID uint64) error {
	watch, err := c.db.GetEpisodeWatch(watchID)
	if err != nil {
		return fmt.Errorf("watch entry %d not known locally: %w", watchID, err)
	}
	if err := c.unwatchEntries([]*models.EpisodeWatch{watch}); err != nil {
		return err
	}

	c.drainEpisode(ctx, watch.EpisodeID)
	return nil
}

// MarkSeasonWatched records a watch for every unwatched episode of a season.
// With onlyAired set, episodes without a known air date or airing in the
// future are skipped. The watch time is "now", or the air date plus one hour
// when useAirDate is set and an air date is known.
func (c *EpisodeController) MarkSeasonWatched(ctx context.Context, seasonID uint64, onlyAired, useAirDate bool) error {
	season, err := c.db.GetSeason(seasonID)
	if err != nil {
		return fmt.Errorf("season %d not known locally: %w", seasonID, err)
	}
	episodes, err := c.db.GetEpisodesBySeason(seasonID)
	if err != nil {
		return err
	}

	now := c.now()
	var created []*models.EpisodeWatch
	for _, episode := range episodes {
		watched, err := c.db.HasEpisodeBeenWatched(episode.ID)
		if err != nil {
			return err
		}
		if watched {
			continue
		}
		if onlyAired && (episode.FirstAired == nil || episode.FirstAired.After(now)) {
			continue
		}

		at := now
		if useAirDate && episode.FirstAired != nil {
			at = episode.FirstAired.Add(1 * time.Hour)
		}
		created = append(created, &models.EpisodeWatch{
			EpisodeID:     episode.ID,
			ShowID:        episode.ShowID,
			WatchedAt:     at,
			PendingAction: models.PendingUpload,
		})
	}

	if len(created) > 0 {
		if err := c.db.CreateWatches(created); err != nil {
			return fmt.Errorf("failed to save watch entries: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"season_id": seasonID,
			"count":     len(created),
		}).Info("Marked season watched")
	}

	c.drainShow(ctx, season.ShowID)
	return nil
}

// MarkSeasonUnwatched removes all watches across a season's episodes
func (c *EpisodeController) MarkSeasonUnwatched(ctx context.Context, seasonID uint64) error {
	season, err := c.db.GetSeason(seasonID)
	if err != nil {
		return fmt.Errorf("season %d not known locally: %w", seasonID, err)
	}
	episodes, err := c.db.GetEpisodesBySeason(seasonID)
	if err != nil {
		return err
	}

	for _, episode := range episodes {
		watches, err := c.db.GetWatchesForEpisode(episode.ID)
		if err != nil {
			return err
		}
		if err := c.unwatchEntries(watches); err != nil {
			return err
		}
	}

	c.drainShow(ctx, season.ShowID)
	return nil
}

// unwatchEntries flips entries towards deletion: never-uploaded entries are
// removed outright, remote-confirmed ones are soft-deleted so the removal can
// be propagated first
func (c *EpisodeController) unwatchEntries(watches []*models.EpisodeWatch) error {
	var remove []uint64
	var softDelete []uint64
	for _, watch := range watches {
		switch watch.PendingAction {
		case models.PendingUpload:
			remove = append(remove, watch.ID)
		case models.PendingNone:
			softDelete = append(softDelete, watch.ID)
		}
	}

	if len(remove) > 0 {
		if err := c.db.DeleteWatches(remove); err != nil {
			return err
		}
	}
	if len(softDelete) > 0 {
		if err := c.db.UpdatePendingAction(softDelete, models.PendingDelete); err != nil {
			return err
		}
	}
	return nil
}

// The local write already succeeded when these run; remote trouble is logged
// and left for the next drain cycle.

func (c *EpisodeController) drainEpisode(ctx context.Context, episodeID uint64) {
	if err := c.sync.DrainEpisode(ctx, episodeID); err != nil {
		c.logger.WithError(err).WithField("episode_id", episodeID).
			Warn("Pending queue drain failed, entries stay pending")
	}
}

func (c *EpisodeController) drainShow(ctx context.Context, showID uint64) {
	if err := c.sync.DrainShow(ctx, showID); err != nil {
		c.logger.WithError(err).WithField("show_id", showID).
			Warn("Pending queue drain failed, entries stay pending")
	}
}
