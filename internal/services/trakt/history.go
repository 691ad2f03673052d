package trakt

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/amaumene/trackarr/internal/models"
)

const historyPageLimit = 1000

type historyItem struct {
	ID        int64     `json:"id"`
	WatchedAt time.Time `json:"watched_at"`
	Action    string    `json:"action"`
	Type      string    `json:"type"`
	Episode   *struct {
		Season int      `json:"season"`
		Number int      `json:"number"`
		IDs    traktIDs `json:"ids"`
	} `json:"episode,omitempty"`
}

// GetShowWatches retrieves a show's watch history. With since set, only
// watches at or after that instant are requested.
func (c *Client) GetShowWatches(ctx context.Context, showID uint64, since *time.Time) ([]models.RemoteWatch, error) {
	path := fmt.Sprintf("/sync/history/shows/%d?limit=%d", showID, historyPageLimit)
	if since != nil {
		path += "&start_at=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	return c.getHistory(ctx, path)
}

// GetEpisodeWatches retrieves one episode's watch history by Trakt episode id
func (c *Client) GetEpisodeWatches(ctx context.Context, episodeTraktID int64, since *time.Time) ([]models.RemoteWatch, error) {
	path := fmt.Sprintf("/sync/history/episodes/%d?limit=%d", episodeTraktID, historyPageLimit)
	if since != nil {
		path += "&start_at=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	return c.getHistory(ctx, path)
}

// getHistory walks every history page. The full-sync diff deletes whatever
// the remote did not report, so returning a truncated set is not an option.
func (c *Client) getHistory(ctx context.Context, path string) ([]models.RemoteWatch, error) {
	var watches []models.RemoteWatch

	for page := 1; ; page++ {
		var items []historyItem
		pageCount, err := c.getPaged(ctx, fmt.Sprintf("%s&page=%d", path, page), &items)
		if err != nil {
			return nil, fmt.Errorf("failed to get watch history page %d: %w", page, err)
		}

		for _, item := range items {
			if item.Type != "episode" || item.Episode == nil {
				continue
			}
			watches = append(watches, models.RemoteWatch{
				ID:             item.ID,
				EpisodeTraktID: item.Episode.IDs.Trakt,
				WatchedAt:      item.WatchedAt,
			})
		}

		if page >= pageCount {
			return watches, nil
		}
	}
}

// AddWatches uploads locally-created watch entries to the history
func (c *Client) AddWatches(ctx context.Context, uploads []models.WatchUpload) error {
	type uploadEpisode struct {
		WatchedAt string `json:"watched_at"`
		IDs       struct {
			Trakt int64 `json:"trakt"`
		} `json:"ids"`
	}

	body := struct {
		Episodes []uploadEpisode `json:"episodes"`
	}{Episodes: make([]uploadEpisode, 0, len(uploads))}

	for _, upload := range uploads {
		ep := uploadEpisode{WatchedAt: upload.WatchedAt.UTC().Format(time.RFC3339)}
		ep.IDs.Trakt = upload.EpisodeTraktID
		body.Episodes = append(body.Episodes, ep)
	}

	if err := c.doRequest(ctx, "POST", "/sync/history", body, nil); err != nil {
		return fmt.Errorf("failed to add watches: %w", err)
	}
	return nil
}

// RemoveWatches deletes watch entries from the history by server-side id
func (c *Client) RemoveWatches(ctx context.Context, historyIDs []int64) error {
	body := struct {
		IDs []int64 `json:"ids"`
	}{IDs: historyIDs}

	if err := c.doRequest(ctx, "POST", "/sync/history/remove", body, nil); err != nil {
		return fmt.Errorf("failed to remove watches: %w", err)
	}
	return nil
}
