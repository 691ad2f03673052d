package trakt

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/trackarr/internal/models"
)

// traktIDs is the id block Trakt attaches to every object
type traktIDs struct {
	Trakt int64  `json:"trakt"`
	TVDB  int64  `json:"tvdb"`
	TMDB  int64  `json:"tmdb"`
	IMDB  string `json:"imdb"`
}

type seasonItem struct {
	Number        int           `json:"number"`
	Title         string        `json:"title"`
	Overview      string        `json:"overview"`
	Network       string        `json:"network"`
	EpisodeCount  *int          `json:"episode_count"`
	AiredEpisodes *int          `json:"aired_episodes"`
	Rating        *float64      `json:"rating"`
	Votes         *int          `json:"votes"`
	IDs           traktIDs      `json:"ids"`
	Episodes      []episodeItem `json:"episodes"`
}

type episodeItem struct {
	Season     int        `json:"season"`
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	Overview   string     `json:"overview"`
	FirstAired *time.Time `json:"first_aired"`
	Rating     *float64   `json:"rating"`
	Votes      *int       `json:"votes"`
	IDs        traktIDs   `json:"ids"`
}

// GetSeasonsAndEpisodes fetches the full season+episode tree of a show.
// Returns notModified=true without data when Trakt reports no change since
// the previous fetch (conditional request on the remembered ETag).
func (c *Client) GetSeasonsAndEpisodes(ctx context.Context, showID uint64) ([]models.SeasonEpisodes, bool, error) {
	path := fmt.Sprintf("/shows/%d/seasons?extended=full,episodes", showID)

	c.etagMu.Lock()
	etag := c.seasonETags[showID]
	c.etagMu.Unlock()

	var items []seasonItem
	notModified, newETag, err := c.getWithETag(ctx, path, etag, &items)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get seasons: %w", err)
	}
	if notModified {
		return nil, true, nil
	}

	c.etagMu.Lock()
	c.seasonETags[showID] = newETag
	c.etagMu.Unlock()

	trees := make([]models.SeasonEpisodes, 0, len(items))
	for _, item := range items {
		season := &models.Season{
			ShowID:        showID,
			TraktID:       item.IDs.Trakt,
			TVDBID:        item.IDs.TVDB,
			Number:        item.Number,
			Title:         item.Title,
			Summary:       item.Overview,
			Network:       item.Network,
			EpisodeCount:  item.EpisodeCount,
			EpisodesAired: item.AiredEpisodes,
			TraktRating:   item.Rating,
			TraktVotes:    item.Votes,
		}

		episodes := make([]*models.Episode, 0, len(item.Episodes))
		for _, ep := range item.Episodes {
			episodes = append(episodes, convertEpisode(showID, ep))
		}
		trees = append(trees, models.SeasonEpisodes{Season: season, Episodes: episodes})
	}
	return trees, false, nil
}

// GetEpisode fetches one episode's detail
func (c *Client) GetEpisode(ctx context.Context, showID uint64, seasonNumber, episodeNumber int) (*models.Episode, error) {
	path := fmt.Sprintf("/shows/%d/seasons/%d/episodes/%d?extended=full", showID, seasonNumber, episodeNumber)

	var item episodeItem
	if err := c.doRequest(ctx, "GET", path, nil, &item); err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return convertEpisode(showID, item), nil
}

// ShowIDs looks up the cross-provider identifiers of a show
func (c *Client) ShowIDs(ctx context.Context, showID uint64) (models.ShowIDs, error) {
	path := fmt.Sprintf("/shows/%d", showID)

	var item struct {
		IDs traktIDs `json:"ids"`
	}
	if err := c.doRequest(ctx, "GET", path, nil, &item); err != nil {
		return models.ShowIDs{}, fmt.Errorf("failed to get show ids: %w", err)
	}
	return models.ShowIDs{
		Trakt: showID,
		TMDB:  item.IDs.TMDB,
		TVDB:  item.IDs.TVDB,
		IMDB:  item.IDs.IMDB,
	}, nil
}

func convertEpisode(showID uint64, item episodeItem) *models.Episode {
	return &models.Episode{
		ShowID:      showID,
		TraktID:     item.IDs.Trakt,
		TVDBID:      item.IDs.TVDB,
		Number:      item.Number,
		Title:       item.Title,
		Summary:     item.Overview,
		FirstAired:  item.FirstAired,
		TraktRating: item.Rating,
		TraktVotes:  item.Votes,
	}
}
