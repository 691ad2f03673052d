package tmdb

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/trackarr/internal/models"
)

type seasonDetail struct {
	ID           int64           `json:"id"`
	SeasonNumber int             `json:"season_number"`
	Name         string          `json:"name"`
	Overview     string          `json:"overview"`
	PosterPath   string          `json:"poster_path"`
	Episodes     []episodeDetail `json:"episodes"`
}

type episodeDetail struct {
	ID            int64    `json:"id"`
	SeasonNumber  int      `json:"season_number"`
	EpisodeNumber int      `json:"episode_number"`
	Name          string   `json:"name"`
	Overview      string   `json:"overview"`
	AirDate       string   `json:"air_date"`
	VoteAverage   *float64 `json:"vote_average"`
	StillPath     string   `json:"still_path"`
}

// GetSeasonsAndEpisodes fetches a show's season+episode tree from TMDB.
// TMDB has no not-modified signalling on these endpoints, so the flag is
// always false.
func (c *Client) GetSeasonsAndEpisodes(ctx context.Context, showID uint64) ([]models.SeasonEpisodes, bool, error) {
	tvID, err := c.tmdbShowID(ctx, showID)
	if err != nil {
		return nil, false, err
	}

	var show struct {
		Seasons []struct {
			SeasonNumber int `json:"season_number"`
		} `json:"seasons"`
	}
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", tvID), &show); err != nil {
		return nil, false, fmt.Errorf("failed to get show: %w", err)
	}

	trees := make([]models.SeasonEpisodes, 0, len(show.Seasons))
	for _, s := range show.Seasons {
		var detail seasonDetail
		if err := c.get(ctx, fmt.Sprintf("/tv/%d/season/%d", tvID, s.SeasonNumber), &detail); err != nil {
			return nil, false, fmt.Errorf("failed to get season %d: %w", s.SeasonNumber, err)
		}

		season := &models.Season{
			ShowID:     showID,
			TMDBID:     detail.ID,
			Number:     detail.SeasonNumber,
			Title:      detail.Name,
			Summary:    detail.Overview,
			PosterPath: detail.PosterPath,
		}
		episodes := make([]*models.Episode, 0, len(detail.Episodes))
		for _, ep := range detail.Episodes {
			episodes = append(episodes, convertEpisode(showID, ep))
		}
		trees = append(trees, models.SeasonEpisodes{Season: season, Episodes: episodes})
	}
	return trees, false, nil
}

// GetEpisode fetches one episode's detail
func (c *Client) GetEpisode(ctx context.Context, showID uint64, seasonNumber, episodeNumber int) (*models.Episode, error) {
	tvID, err := c.tmdbShowID(ctx, showID)
	if err != nil {
		return nil, err
	}

	var detail episodeDetail
	path := fmt.Sprintf("/tv/%d/season/%d/episode/%d", tvID, seasonNumber, episodeNumber)
	if err := c.get(ctx, path, &detail); err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return convertEpisode(showID, detail), nil
}

func convertEpisode(showID uint64, detail episodeDetail) *models.Episode {
	episode := &models.Episode{
		ShowID:     showID,
		TMDBID:     detail.ID,
		Number:     detail.EpisodeNumber,
		Title:      detail.Name,
		Summary:    detail.Overview,
		TMDBRating: detail.VoteAverage,
		StillPath:  detail.StillPath,
	}
	if detail.AirDate != "" {
		if aired, err := time.Parse("2006-01-02", detail.AirDate); err == nil {
			episode.FirstAired = &aired
		}
	}
	return episode
}
