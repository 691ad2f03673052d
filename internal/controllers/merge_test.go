package controllers

import (
	"testing"
	"time"

	"github.com/amaumene/trackarr/internal/models"
)

func intPtr(v int) *int              { return &v }
func floatPtr(v float64) *float64    { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestMergeSeasonPrecedence(t *testing.T) {
	local := &models.Season{
		ID:      7,
		ShowID:  42,
		Number:  1,
		Title:   "Local Title",
		Summary: "Local summary",
		Network: "Local Network",
		TVDBID:  100,
	}
	fromTrakt := &models.Season{
		TraktID:       501,
		TVDBID:        200,
		Number:        1,
		Title:         "Trakt Title",
		Network:       "HBO",
		EpisodeCount:  intPtr(10),
		EpisodesAired: intPtr(8),
		TraktRating:   floatPtr(8.5),
		TraktVotes:    intPtr(1200),
	}
	fromTMDB := &models.Season{
		TMDBID:     9001,
		TVDBID:     300,
		Number:     1,
		Title:      "TMDB Title",
		Summary:    "TMDB summary",
		TMDBRating: floatPtr(7.9),
		PosterPath: "/poster.jpg",
	}

	merged := MergeSeason(local, fromTrakt, fromTMDB)

	// Trakt wins where it has a value
	if merged.Title != "Trakt Title" {
		t.Errorf("expected Trakt title, got %q", merged.Title)
	}
	if merged.Network != "HBO" {
		t.Errorf("expected Trakt network, got %q", merged.Network)
	}
	// TMDB fills what Trakt left empty
	if merged.Summary != "TMDB summary" {
		t.Errorf("expected TMDB summary, got %q", merged.Summary)
	}
	if merged.PosterPath != "/poster.jpg" {
		t.Errorf("expected TMDB poster, got %q", merged.PosterPath)
	}
	// Provider ids stay independent
	if merged.TraktID != 501 {
		t.Errorf("expected Trakt id 501, got %d", merged.TraktID)
	}
	if merged.TMDBID != 9001 {
		t.Errorf("expected TMDB id 9001, got %d", merged.TMDBID)
	}
	// Cross-reference id: Trakt's copy beats TMDB's beats local
	if merged.TVDBID != 200 {
		t.Errorf("expected TVDB id 200, got %d", merged.TVDBID)
	}
	// Local identity survives
	if merged.ID != 7 || merged.ShowID != 42 {
		t.Errorf("local identity changed: id=%d show=%d", merged.ID, merged.ShowID)
	}
	if *merged.TraktRating != 8.5 || *merged.TMDBRating != 7.9 {
		t.Error("rating fields not kept per provider")
	}
}

func TestMergeSeasonLocalFallback(t *testing.T) {
	// Providers dropping a field must not erase the locally-known value
	local := &models.Season{
		Title:        "Known Title",
		Summary:      "Known summary",
		PosterPath:   "/old.jpg",
		EpisodeCount: intPtr(12),
	}

	merged := MergeSeason(local, &models.Season{Number: 1}, &models.Season{Number: 1})

	if merged.Title != "Known Title" {
		t.Errorf("local title lost: %q", merged.Title)
	}
	if merged.Summary != "Known summary" {
		t.Errorf("local summary lost: %q", merged.Summary)
	}
	if merged.PosterPath != "/old.jpg" {
		t.Errorf("local poster lost: %q", merged.PosterPath)
	}
	if merged.EpisodeCount == nil || *merged.EpisodeCount != 12 {
		t.Error("local episode count lost")
	}
}

func TestMergeSeasonIdentifierBackfill(t *testing.T) {
	// Example from the wild: local knows the title, Trakt supplies a fresh
	// title plus its id
	local := &models.Season{Title: "Old"}
	fromTrakt := &models.Season{Title: "New", TraktID: 11}

	merged := MergeSeason(local, fromTrakt, nil)
	if merged.Title != "New" || merged.TraktID != 11 {
		t.Errorf("got title=%q traktID=%d", merged.Title, merged.TraktID)
	}
}

func TestMergeSeasonIdempotent(t *testing.T) {
	local := &models.Season{ID: 3, ShowID: 1, Number: 2, Title: "S2", TVDBID: 5}
	fromTrakt := &models.Season{TraktID: 9, Number: 2, Title: "Season Two", TraktVotes: intPtr(40)}
	fromTMDB := &models.Season{TMDBID: 8, Number: 2, Summary: "About season two", PosterPath: "/p.jpg"}

	once := MergeSeason(local, fromTrakt, fromTMDB)
	twice := MergeSeason(once, fromTrakt, fromTMDB)

	if *once != *twice {
		t.Errorf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergeEpisodePrecedence(t *testing.T) {
	aired := time.Date(2023, 4, 1, 20, 0, 0, 0, time.UTC)
	local := &models.Episode{ID: 5, SeasonID: 2, ShowID: 42, Number: 3, Title: "Local"}
	fromTrakt := &models.Episode{
		TraktID:     700,
		TVDBID:      71,
		Number:      3,
		Title:       "The Third One",
		FirstAired:  timePtr(aired),
		TraktRating: floatPtr(9.1),
	}
	fromTMDB := &models.Episode{
		TMDBID:     800,
		Number:     3,
		Title:      "Episode Three",
		Summary:    "A third episode",
		TMDBRating: floatPtr(8.0),
		StillPath:  "/still.jpg",
	}

	merged := MergeEpisode(local, fromTrakt, fromTMDB)

	if merged.Title != "The Third One" {
		t.Errorf("expected Trakt title, got %q", merged.Title)
	}
	if merged.Summary != "A third episode" {
		t.Errorf("expected TMDB summary, got %q", merged.Summary)
	}
	if merged.TraktID != 700 || merged.TMDBID != 800 || merged.TVDBID != 71 {
		t.Errorf("ids wrong: trakt=%d tmdb=%d tvdb=%d", merged.TraktID, merged.TMDBID, merged.TVDBID)
	}
	if merged.FirstAired == nil || !merged.FirstAired.Equal(aired) {
		t.Error("air date lost")
	}
	if merged.StillPath != "/still.jpg" {
		t.Errorf("expected TMDB still, got %q", merged.StillPath)
	}
	if merged.ID != 5 || merged.SeasonID != 2 || merged.ShowID != 42 {
		t.Error("local identity changed")
	}
}

func TestMergeEpisodeBothProvidersAbsent(t *testing.T) {
	local := &models.Episode{ID: 1, Number: 4, Title: "Kept", TraktID: 10}

	merged := MergeEpisode(local, nil, nil)
	if *merged != *local {
		t.Errorf("merge with no remote variants changed the record: %+v", merged)
	}
}
