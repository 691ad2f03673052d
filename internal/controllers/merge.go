package controllers

import "github.com/amaumene/trackarr/internal/models"

// Field merge rules: Trakt value if present, else TMDB value if present, else
// the existing local value. Provider ids are never merged into each other:
// the Trakt id can only come from Trakt, the TMDB id only from TMDB. The TVDB
// cross-reference id is supplied by both providers and follows the normal
// precedence. Locally-known values survive a provider dropping a field.
//
// These functions are pure and idempotent; persistence timestamps are owned
// by the database layer.

// firstNonZero returns the first value that is not the zero value
func firstNonZero[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// firstSet returns the first non-nil pointer
func firstSet[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// MergeSeason combines a local season with the Trakt and TMDB variants.
// local must not be nil (use a zero-value season for a new record); trakt and
// tmdb may each be nil when that provider had nothing.
func MergeSeason(local, trakt, tmdb *models.Season) *models.Season {
	var a, b models.Season
	if trakt != nil {
		a = *trakt
	}
	if tmdb != nil {
		b = *tmdb
	}

	merged := *local
	merged.ShowID = firstNonZero(local.ShowID, a.ShowID, b.ShowID)

	merged.TraktID = firstNonZero(a.TraktID, merged.TraktID)
	merged.TMDBID = firstNonZero(b.TMDBID, merged.TMDBID)
	merged.TVDBID = firstNonZero(a.TVDBID, b.TVDBID, merged.TVDBID)

	merged.Number = firstNonZero(a.Number, b.Number, merged.Number)
	merged.Title = firstNonZero(a.Title, b.Title, merged.Title)
	merged.Summary = firstNonZero(a.Summary, b.Summary, merged.Summary)
	merged.Network = firstNonZero(a.Network, b.Network, merged.Network)

	merged.EpisodeCount = firstSet(a.EpisodeCount, b.EpisodeCount, merged.EpisodeCount)
	merged.EpisodesAired = firstSet(a.EpisodesAired, b.EpisodesAired, merged.EpisodesAired)

	merged.TraktRating = firstSet(a.TraktRating, merged.TraktRating)
	merged.TraktVotes = firstSet(a.TraktVotes, merged.TraktVotes)
	merged.TMDBRating = firstSet(b.TMDBRating, merged.TMDBRating)

	merged.PosterPath = firstNonZero(b.PosterPath, merged.PosterPath)
	merged.BackdropPath = firstNonZero(b.BackdropPath, merged.BackdropPath)

	return &merged
}

// MergeEpisode combines a local episode with the Trakt and TMDB variants,
// with the same rules as MergeSeason
func MergeEpisode(local, trakt, tmdb *models.Episode) *models.Episode {
	var a, b models.Episode
	if trakt != nil {
		a = *trakt
	}
	if tmdb != nil {
		b = *tmdb
	}

	merged := *local
	merged.ShowID = firstNonZero(local.ShowID, a.ShowID, b.ShowID)
	merged.SeasonID = firstNonZero(local.SeasonID, a.SeasonID, b.SeasonID)

	merged.TraktID = firstNonZero(a.TraktID, merged.TraktID)
	merged.TMDBID = firstNonZero(b.TMDBID, merged.TMDBID)
	merged.TVDBID = firstNonZero(a.TVDBID, b.TVDBID, merged.TVDBID)

	merged.Number = firstNonZero(a.Number, b.Number, merged.Number)
	merged.Title = firstNonZero(a.Title, b.Title, merged.Title)
	merged.Summary = firstNonZero(a.Summary, b.Summary, merged.Summary)

	merged.FirstAired = firstSet(a.FirstAired, b.FirstAired, merged.FirstAired)

	merged.TraktRating = firstSet(a.TraktRating, merged.TraktRating)
	merged.TraktVotes = firstSet(a.TraktVotes, merged.TraktVotes)
	merged.TMDBRating = firstSet(b.TMDBRating, merged.TMDBRating)

	merged.StillPath = firstNonZero(b.StillPath, merged.StillPath)

	return &merged
}
