package controllers

import (
	"context"

	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// Pending-queue draining. Entries marked for deletion are processed before
// entries awaiting upload, so a watch flipped twice by the user within one
// cycle is never uploaded and then deleted again. Without a session both
// buckets resolve locally: deletes are removed outright, uploads are
// confirmed in place. When a bucket actually hit the network, the affected
// scope is re-fetched afterwards to absorb server-assigned history ids.

// DrainShow processes a show's pending watch entries
func (c *SyncController) DrainShow(ctx context.Context, showID uint64) error {
	deletes, err := c.db.GetWatchesWithPendingAction(showID, models.PendingDelete)
	if err != nil {
		return err
	}
	uploads, err := c.db.GetWatchesWithPendingAction(showID, models.PendingUpload)
	if err != nil {
		return err
	}

	mutated, err := c.drainBuckets(ctx, deletes, uploads)
	if err != nil {
		return err
	}
	if mutated {
		return c.SyncShowWatches(ctx, showID, models.SyncModeFull, true, nil)
	}
	return nil
}

// DrainEpisode processes one episode's pending watch entries
func (c *SyncController) DrainEpisode(ctx context.Context, episodeID uint64) error {
	deletes, err := c.db.GetEpisodeWatchesWithPendingAction(episodeID, models.PendingDelete)
	if err != nil {
		return err
	}
	uploads, err := c.db.GetEpisodeWatchesWithPendingAction(episodeID, models.PendingUpload)
	if err != nil {
		return err
	}

	mutated, err := c.drainBuckets(ctx, deletes, uploads)
	if err != nil {
		return err
	}
	if mutated {
		return c.SyncEpisodeWatches(ctx, episodeID)
	}
	return nil
}

func (c *SyncController) drainBuckets(ctx context.Context, deletes, uploads []*models.EpisodeWatch) (bool, error) {
	authenticated := c.session.IsAuthenticated()
	mutated := false

	if len(deletes) > 0 {
		ids := watchIDs(deletes)

		var remoteIDs []int64
		for _, watch := range deletes {
			if watch.TraktID != 0 {
				remoteIDs = append(remoteIDs, watch.TraktID)
			}
		}

		switch {
		case authenticated && len(remoteIDs) > 0:
			if err := c.watches.RemoveWatches(ctx, remoteIDs); err != nil {
				// Entries stay pending and are retried on the next drain
				c.logger.WithError(err).Warn("Remote watch removal failed, keeping entries pending")
			} else {
				mutated = true
				if err := c.db.DeleteWatches(ids); err != nil {
					return mutated, err
				}
			}
		default:
			// Nothing owed remotely, local deletion completes the job
			if err := c.db.DeleteWatches(ids); err != nil {
				return mutated, err
			}
		}
	}

	if len(uploads) > 0 {
		if !authenticated {
			// Optimistic local confirm, no upload owed
			if err := c.db.UpdatePendingAction(watchIDs(uploads), models.PendingNone); err != nil {
				return mutated, err
			}
			return mutated, nil
		}

		var payload []models.WatchUpload
		var uploadable []uint64
		for _, watch := range uploads {
			episode, err := c.db.GetEpisode(watch.EpisodeID)
			if err != nil || episode.TraktID == 0 {
				// Stays pending until the metadata sync supplies the Trakt id
				c.logger.WithField("watch_id", watch.ID).Debug("Watch not uploadable yet, episode unresolved")
				continue
			}
			payload = append(payload, models.WatchUpload{
				EpisodeTraktID: episode.TraktID,
				WatchedAt:      watch.WatchedAt,
			})
			uploadable = append(uploadable, watch.ID)
		}

		if len(payload) > 0 {
			if err := c.watches.AddWatches(ctx, payload); err != nil {
				c.logger.WithError(err).Warn("Remote watch upload failed, keeping entries pending")
			} else {
				mutated = true
				if err := c.db.UpdatePendingAction(uploadable, models.PendingNone); err != nil {
					return mutated, err
				}
				c.logger.WithFields(logrus.Fields{"count": len(uploadable)}).Info("Uploaded pending watches")
			}
		}
	}

	return mutated, nil
}

func watchIDs(watches []*models.EpisodeWatch) []uint64 {
	ids := make([]uint64, 0, len(watches))
	for _, watch := range watches {
		ids = append(ids, watch.ID)
	}
	return ids
}
