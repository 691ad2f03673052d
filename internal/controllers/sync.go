package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// MetadataSource is a remote provider of season/episode metadata
type MetadataSource interface {
	// GetSeasonsAndEpisodes fetches the full season+episode tree of a show.
	// notModified is true when the provider reports no change since the last
	// fetch, in which case trees is empty.
	GetSeasonsAndEpisodes(ctx context.Context, showID uint64) (trees []models.SeasonEpisodes, notModified bool, err error)

	// GetEpisode fetches one episode's detail by season and episode ordinal
	GetEpisode(ctx context.Context, showID uint64, seasonNumber, episodeNumber int) (*models.Episode, error)
}

// WatchSource is the remote watch-history service
type WatchSource interface {
	GetShowWatches(ctx context.Context, showID uint64, since *time.Time) ([]models.RemoteWatch, error)
	GetEpisodeWatches(ctx context.Context, episodeTraktID int64, since *time.Time) ([]models.RemoteWatch, error)
	AddWatches(ctx context.Context, uploads []models.WatchUpload) error
	RemoveWatches(ctx context.Context, historyIDs []int64) error
}

// Session reports whether a remote user session exists. Polled at the start of
// every remote-touching operation, never cached.
type Session interface {
	IsAuthenticated() bool
}

// SyncController reconciles local state against the remote providers.
// Trakt is authoritative for merges and owns the watch history; TMDB fills in
// what Trakt does not carry (images, its own ratings and ids).
type SyncController struct {
	db      *models.Database
	trakt   MetadataSource
	tmdb    MetadataSource
	watches WatchSource
	session Session
	refresh *RefreshPolicy
	logger  *logrus.Logger
}

// NewSyncController creates a new sync controller
func NewSyncController(
	db *models.Database,
	trakt MetadataSource,
	tmdb MetadataSource,
	watches WatchSource,
	session Session,
	refresh *RefreshPolicy,
	logger *logrus.Logger,
) *SyncController {
	return &SyncController{
		db:      db,
		trakt:   trakt,
		tmdb:    tmdb,
		watches: watches,
		session: session,
		refresh: refresh,
		logger:  logger,
	}
}

// RefreshSeasonsEpisodes fetches a show's full season+episode tree from Trakt,
// merges it into the local records and persists everything in one batch.
// Seasons and episodes sharing an ordinal are deduplicated, first occurrence
// wins. A not-modified response skips all writes including the refresh marker.
func (c *SyncController) RefreshSeasonsEpisodes(ctx context.Context, showID uint64) error {
	if !c.session.IsAuthenticated() {
		c.logger.Debug("No session, skipping season refresh")
		return nil
	}

	trees, notModified, err := c.trakt.GetSeasonsAndEpisodes(ctx, showID)
	if err != nil {
		return fmt.Errorf("failed to fetch seasons for show %d: %w", showID, err)
	}
	if notModified {
		c.logger.WithField("show_id", showID).Debug("Seasons not modified, skipping")
		return nil
	}

	seenSeasons := make(map[int]bool)
	var merged []models.SeasonEpisodes

	for _, tree := range trees {
		if tree.Season == nil || seenSeasons[tree.Season.Number] {
			continue
		}
		seenSeasons[tree.Season.Number] = true

		localSeason := &models.Season{ShowID: showID, Number: tree.Season.Number}
		if tree.Season.TraktID != 0 {
			if existing, err := c.db.GetSeasonByTraktID(showID, tree.Season.TraktID); err == nil {
				localSeason = existing
			}
		}
		season := MergeSeason(localSeason, tree.Season, nil)

		seenEpisodes := make(map[int]bool)
		var episodes []*models.Episode
		for _, remote := range tree.Episodes {
			if seenEpisodes[remote.Number] {
				continue
			}
			seenEpisodes[remote.Number] = true

			localEpisode := &models.Episode{ShowID: showID, Number: remote.Number}
			if remote.TraktID != 0 {
				if existing, err := c.db.GetEpisodeByTraktID(remote.TraktID); err == nil {
					localEpisode = existing
				}
			}
			episodes = append(episodes, MergeEpisode(localEpisode, remote, nil))
		}

		merged = append(merged, models.SeasonEpisodes{Season: season, Episodes: episodes})
	}

	if err := c.db.SaveSeasonsAndEpisodes(merged); err != nil {
		return fmt.Errorf("failed to save seasons for show %d: %w", showID, err)
	}

	if err := c.refresh.RecordSuccess(models.SeasonScope(showID)); err != nil {
		return fmt.Errorf("failed to record season refresh for show %d: %w", showID, err)
	}

	c.logger.WithFields(logrus.Fields{
		"show_id": showID,
		"seasons": len(merged),
	}).Info("Refreshed seasons and episodes")
	return nil
}

// RefreshEpisode fetches one episode's detail from Trakt and TMDB concurrently
// and merges both into the local record. The episode and its season must
// already exist locally; anything else is a caller bug and the error says so.
// A single provider failing only costs that provider's contribution. The
// refresh marker is recorded only when at least one provider actually
// answered; a skipped or fully-degraded refresh leaves the scope stale.
func (c *SyncController) RefreshEpisode(ctx context.Context, episodeID uint64) error {
	episode, err := c.db.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("episode %d not known locally, run the season sync first: %w", episodeID, err)
	}
	season, err := c.db.GetSeason(episode.SeasonID)
	if err != nil {
		return fmt.Errorf("season %d for episode %d not known locally: %w", episode.SeasonID, episodeID, err)
	}

	if !c.session.IsAuthenticated() {
		c.logger.Debug("No session, skipping episode refresh")
		return nil
	}

	var fromTrakt, fromTMDB *models.Episode
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		remote, err := c.trakt.GetEpisode(ctx, episode.ShowID, season.Number, episode.Number)
		if err != nil {
			c.logger.WithError(err).WithField("episode_id", episodeID).
				Warn("Trakt episode fetch failed, merging without it")
			return
		}
		fromTrakt = remote
	}()

	go func() {
		defer wg.Done()
		remote, err := c.tmdb.GetEpisode(ctx, episode.ShowID, season.Number, episode.Number)
		if err != nil {
			c.logger.WithError(err).WithField("episode_id", episodeID).
				Warn("TMDB episode fetch failed, merging without it")
			return
		}
		fromTMDB = remote
	}()

	wg.Wait()

	if fromTrakt == nil && fromTMDB == nil {
		c.logger.WithField("episode_id", episodeID).Warn("No provider answered, keeping stored episode")
		return nil
	}

	merged := MergeEpisode(episode, fromTrakt, fromTMDB)
	if err := c.db.SaveEpisode(merged); err != nil {
		return fmt.Errorf("failed to save episode %d: %w", episodeID, err)
	}

	if err := c.refresh.RecordSuccess(models.EpisodeScope(episodeID)); err != nil {
		return fmt.Errorf("failed to record episode refresh %d: %w", episodeID, err)
	}
	return nil
}

// SyncShowWatches reconciles a show's watch history against the remote.
//
// Quick mode with a known newest-remote time and a prior successful sync does
// a delta fetch from one second past that time, so the boundary entry is not
// re-pulled; deltas only add or update. Full mode (or a quick sync without a
// delta opportunity) fetches everything and replaces the remote-confirmed set
// by diff. Entries whose episode is unknown locally are dropped.
func (c *SyncController) SyncShowWatches(ctx context.Context, showID uint64, mode models.SyncMode, force bool, lastKnown *time.Time) error {
	if !c.session.IsAuthenticated() {
		c.logger.Debug("No session, skipping watch sync")
		return nil
	}

	scope := models.WatchScope(showID)
	if !force && !c.refresh.IsStale(scope, DefaultWatchExpiry) {
		return nil
	}

	useDelta := mode == models.SyncModeQuick && lastKnown != nil && c.refresh.HasSucceeded(scope)

	if useDelta {
		since := lastKnown.Add(1 * time.Second)
		remote, err := c.watches.GetShowWatches(ctx, showID, &since)
		if err != nil {
			return fmt.Errorf("failed to fetch watch delta for show %d: %w", showID, err)
		}
		if err := c.db.UpsertRemoteWatches(c.resolveRemoteWatches(showID, remote)); err != nil {
			return fmt.Errorf("failed to apply watch delta for show %d: %w", showID, err)
		}
	} else {
		remote, err := c.watches.GetShowWatches(ctx, showID, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch watches for show %d: %w", showID, err)
		}
		if err := c.db.ReplaceShowWatches(showID, c.resolveRemoteWatches(showID, remote)); err != nil {
			return fmt.Errorf("failed to replace watches for show %d: %w", showID, err)
		}
	}

	if err := c.refresh.RecordSuccess(scope); err != nil {
		return fmt.Errorf("failed to record watch sync for show %d: %w", showID, err)
	}
	return nil
}

// SyncEpisodeWatches replaces one episode's remote-confirmed watch set with
// the remote's current view. No staleness gate; this runs right after a queue
// drain to absorb server-assigned history ids.
func (c *SyncController) SyncEpisodeWatches(ctx context.Context, episodeID uint64) error {
	episode, err := c.db.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("episode %d not known locally: %w", episodeID, err)
	}

	if !c.session.IsAuthenticated() {
		return nil
	}
	if episode.TraktID == 0 {
		// Not addressable remotely until the metadata sync fills the id in
		c.logger.WithField("episode_id", episodeID).Debug("Episode has no Trakt id, skipping watch sync")
		return nil
	}

	remote, err := c.watches.GetEpisodeWatches(ctx, episode.TraktID, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch watches for episode %d: %w", episodeID, err)
	}

	confirmed := make([]*models.EpisodeWatch, 0, len(remote))
	for _, watch := range remote {
		confirmed = append(confirmed, &models.EpisodeWatch{
			EpisodeID:     episode.ID,
			ShowID:        episode.ShowID,
			TraktID:       watch.ID,
			WatchedAt:     watch.WatchedAt,
			PendingAction: models.PendingNone,
		})
	}

	if err := c.db.ReplaceEpisodeWatches(episode.ID, confirmed); err != nil {
		return fmt.Errorf("failed to replace watches for episode %d: %w", episodeID, err)
	}
	return nil
}

// resolveRemoteWatches translates remote watch entries to local ones. Entries
// whose episode has no local match are dropped silently; the metadata sync is
// expected to have run first.
func (c *SyncController) resolveRemoteWatches(showID uint64, remote []models.RemoteWatch) []*models.EpisodeWatch {
	confirmed := make([]*models.EpisodeWatch, 0, len(remote))
	for _, watch := range remote {
		episodeID, err := c.db.GetEpisodeIDForTraktID(watch.EpisodeTraktID)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"show_id":          showID,
				"episode_trakt_id": watch.EpisodeTraktID,
			}).Debug("Dropping watch for unknown episode")
			continue
		}
		confirmed = append(confirmed, &models.EpisodeWatch{
			EpisodeID:     episodeID,
			ShowID:        showID,
			TraktID:       watch.ID,
			WatchedAt:     watch.WatchedAt,
			PendingAction: models.PendingNone,
		})
	}
	return confirmed
}
