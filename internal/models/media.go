package models

import "time"

// Season represents one season of a show, merged from Trakt and TMDB.
//
// Provider ids use 0 for "unknown" (no provider hands out id 0). Optional
// descriptive values that can legitimately be zero are pointers so the merge
// logic can tell "absent" from "present-but-default".
type Season struct {
	ID     uint64 `boltholdKey:"ID"`
	ShowID uint64 `boltholdIndex:"ShowID"` // Trakt show id, the app-wide show reference

	TraktID int64 `boltholdIndex:"TraktID"`
	TMDBID  int64
	TVDBID  int64

	Number  int
	Title   string
	Summary string
	Network string

	EpisodeCount  *int
	EpisodesAired *int

	TraktRating *float64
	TraktVotes  *int
	TMDBRating  *float64

	// TMDB only
	PosterPath   string
	BackdropPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Episode represents one episode, merged from Trakt and TMDB
type Episode struct {
	ID       uint64 `boltholdKey:"ID"`
	SeasonID uint64 `boltholdIndex:"SeasonID"`
	ShowID   uint64 `boltholdIndex:"ShowID"`

	TraktID int64 `boltholdIndex:"TraktID"`
	TMDBID  int64
	TVDBID  int64

	Number  int
	Title   string
	Summary string

	FirstAired *time.Time

	TraktRating *float64
	TraktVotes  *int
	TMDBRating  *float64

	// TMDB only
	StillPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeasonEpisodes bundles a season with its episodes, as returned by a
// metadata source and as persisted in one atomic batch
type SeasonEpisodes struct {
	Season   *Season
	Episodes []*Episode
}

// ShowIDs carries the cross-provider identifiers of a show
type ShowIDs struct {
	Trakt uint64
	TMDB  int64
	TVDB  int64
	IMDB  string
}
