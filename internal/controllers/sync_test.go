package controllers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// fakes for the remote collaborators

type fakeMetadata struct {
	trees       []models.SeasonEpisodes
	notModified bool
	err         error
	episode     *models.Episode
	episodeErr  error
	treeCalls   int
}

func (f *fakeMetadata) GetSeasonsAndEpisodes(ctx context.Context, showID uint64) ([]models.SeasonEpisodes, bool, error) {
	f.treeCalls++
	return f.trees, f.notModified, f.err
}

func (f *fakeMetadata) GetEpisode(ctx context.Context, showID uint64, seasonNumber, episodeNumber int) (*models.Episode, error) {
	return f.episode, f.episodeErr
}

type fakeWatches struct {
	showWatches    []models.RemoteWatch
	episodeWatches []models.RemoteWatch
	fetchErr       error
	addErr         error
	removeErr      error

	lastSince *time.Time
	added     []models.WatchUpload
	removed   []int64
	ops       []string
}

func (f *fakeWatches) GetShowWatches(ctx context.Context, showID uint64, since *time.Time) ([]models.RemoteWatch, error) {
	f.ops = append(f.ops, "getShow")
	f.lastSince = since
	return f.showWatches, f.fetchErr
}

func (f *fakeWatches) GetEpisodeWatches(ctx context.Context, episodeTraktID int64, since *time.Time) ([]models.RemoteWatch, error) {
	f.ops = append(f.ops, "getEpisode")
	return f.episodeWatches, f.fetchErr
}

func (f *fakeWatches) AddWatches(ctx context.Context, uploads []models.WatchUpload) error {
	f.ops = append(f.ops, "add")
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, uploads...)
	return nil
}

func (f *fakeWatches) RemoveWatches(ctx context.Context, historyIDs []int64) error {
	f.ops = append(f.ops, "remove")
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, historyIDs...)
	return nil
}

type fakeSession struct {
	authed bool
}

func (f *fakeSession) IsAuthenticated() bool { return f.authed }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestSync(t *testing.T, trakt, tmdb MetadataSource, watches WatchSource, authed bool) (*SyncController, *models.Database) {
	t.Helper()
	db := newTestDB(t)
	sync := NewSyncController(db, trakt, tmdb, watches, &fakeSession{authed: authed}, NewRefreshPolicy(db), quietLogger())
	return sync, db
}

// seedEpisode stores a season and episode directly, returning the episode
func seedEpisode(t *testing.T, db *models.Database, showID uint64, seasonNumber, episodeNumber int, traktID int64) *models.Episode {
	t.Helper()
	season := &models.Season{ShowID: showID, Number: seasonNumber, TraktID: int64(seasonNumber) + 1000}
	episode := &models.Episode{ShowID: showID, Number: episodeNumber, TraktID: traktID}
	trees := []models.SeasonEpisodes{{Season: season, Episodes: []*models.Episode{episode}}}
	if err := db.SaveSeasonsAndEpisodes(trees); err != nil {
		t.Fatalf("failed to seed episode: %v", err)
	}
	return episode
}

func TestRefreshSeasonsDedupByOrdinal(t *testing.T) {
	trees := []models.SeasonEpisodes{
		{
			Season: &models.Season{Number: 1, TraktID: 11, Title: "First"},
			Episodes: []*models.Episode{
				{Number: 1, TraktID: 101, Title: "Pilot"},
				{Number: 1, TraktID: 999, Title: "Duplicate Pilot"},
				{Number: 2, TraktID: 102, Title: "Second"},
			},
		},
		{
			Season: &models.Season{Number: 1, TraktID: 99, Title: "Duplicate First"},
		},
	}
	sync, db := newTestSync(t, &fakeMetadata{trees: trees}, &fakeMetadata{}, &fakeWatches{}, true)

	if err := sync.RefreshSeasonsEpisodes(context.Background(), 42); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	seasons, err := db.GetSeasonsForShow(42)
	if err != nil {
		t.Fatalf("get seasons: %v", err)
	}
	if len(seasons) != 1 {
		t.Fatalf("expected 1 season, got %d", len(seasons))
	}
	if seasons[0].Title != "First" || seasons[0].TraktID != 11 {
		t.Errorf("first occurrence must win: %+v", seasons[0])
	}

	episodes, err := db.GetEpisodesBySeason(seasons[0].ID)
	if err != nil {
		t.Fatalf("get episodes: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	if episodes[0].Title != "Pilot" || episodes[0].TraktID != 101 {
		t.Errorf("first episode occurrence must win: %+v", episodes[0])
	}
}

func TestRefreshSeasonsNotModifiedSkipsEverything(t *testing.T) {
	sync, db := newTestSync(t, &fakeMetadata{notModified: true}, &fakeMetadata{}, &fakeWatches{}, true)

	if err := sync.RefreshSeasonsEpisodes(context.Background(), 42); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	seasons, _ := db.GetSeasonsForShow(42)
	if len(seasons) != 0 {
		t.Error("not-modified must not write anything")
	}
	if NewRefreshPolicy(db).HasSucceeded(models.SeasonScope(42)) {
		t.Error("not-modified must not advance the refresh marker")
	}
}

func TestRefreshSeasonsUpdatesExistingByTraktID(t *testing.T) {
	existingTrees := []models.SeasonEpisodes{{
		Season:   &models.Season{ShowID: 42, Number: 1, TraktID: 11, Title: "Old", Summary: "Kept summary"},
		Episodes: []*models.Episode{{Number: 1, TraktID: 101, Title: "Old Pilot"}},
	}}
	sync, db := newTestSync(t, &fakeMetadata{trees: []models.SeasonEpisodes{{
		Season:   &models.Season{Number: 1, TraktID: 11, Title: "New"},
		Episodes: []*models.Episode{{Number: 1, TraktID: 101, Title: "New Pilot"}},
	}}}, &fakeMetadata{}, &fakeWatches{}, true)

	if err := db.SaveSeasonsAndEpisodes(existingTrees); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := sync.RefreshSeasonsEpisodes(context.Background(), 42); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	seasons, _ := db.GetSeasonsForShow(42)
	if len(seasons) != 1 {
		t.Fatalf("expected the existing season updated in place, got %d seasons", len(seasons))
	}
	if seasons[0].Title != "New" {
		t.Errorf("title not refreshed: %q", seasons[0].Title)
	}
	if seasons[0].Summary != "Kept summary" {
		t.Errorf("locally-known summary lost: %q", seasons[0].Summary)
	}
}

func TestRefreshSeasonsSkippedWithoutSession(t *testing.T) {
	fake := &fakeMetadata{trees: []models.SeasonEpisodes{{Season: &models.Season{Number: 1, TraktID: 1}}}}
	sync, db := newTestSync(t, fake, &fakeMetadata{}, &fakeWatches{}, false)

	if err := sync.RefreshSeasonsEpisodes(context.Background(), 42); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if fake.treeCalls != 0 {
		t.Error("no remote call allowed without a session")
	}
	seasons, _ := db.GetSeasonsForShow(42)
	if len(seasons) != 0 {
		t.Error("nothing may be written without a session")
	}
}

func TestRefreshEpisodeUnknownEpisodeIsFatal(t *testing.T) {
	sync, _ := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, &fakeWatches{}, true)

	if err := sync.RefreshEpisode(context.Background(), 12345); err == nil {
		t.Fatal("refreshing an unknown episode must fail")
	}
}

func TestRefreshEpisodeDegradesPerProvider(t *testing.T) {
	aired := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	traktFake := &fakeMetadata{episodeErr: context.DeadlineExceeded}
	tmdbFake := &fakeMetadata{episode: &models.Episode{
		Number: 1, TMDBID: 808, Summary: "From TMDB", StillPath: "/s.jpg", FirstAired: &aired,
	}}
	sync, db := newTestSync(t, traktFake, tmdbFake, &fakeWatches{}, true)

	seeded := seedEpisode(t, db, 42, 1, 1, 101)

	if err := sync.RefreshEpisode(context.Background(), seeded.ID); err != nil {
		t.Fatalf("one failing provider must not abort the refresh: %v", err)
	}

	episode, err := db.GetEpisode(seeded.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if episode.Summary != "From TMDB" || episode.StillPath != "/s.jpg" {
		t.Errorf("TMDB contribution missing: %+v", episode)
	}
	if episode.TraktID != 101 {
		t.Errorf("local Trakt id lost: %d", episode.TraktID)
	}
	if !NewRefreshPolicy(db).HasSucceeded(models.EpisodeScope(seeded.ID)) {
		t.Error("a partially-successful refresh must record the marker")
	}
}

func TestRefreshEpisodeNoSessionLeavesScopeStale(t *testing.T) {
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, &fakeWatches{}, false)

	seeded := seedEpisode(t, db, 42, 1, 1, 101)

	if err := sync.RefreshEpisode(context.Background(), seeded.ID); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if NewRefreshPolicy(db).HasSucceeded(models.EpisodeScope(seeded.ID)) {
		t.Error("a skipped refresh must not record the marker")
	}
}

func TestRefreshEpisodeAllProvidersFailedLeavesScopeStale(t *testing.T) {
	traktFake := &fakeMetadata{episodeErr: context.DeadlineExceeded}
	tmdbFake := &fakeMetadata{episodeErr: context.DeadlineExceeded}
	sync, db := newTestSync(t, traktFake, tmdbFake, &fakeWatches{}, true)

	seeded := seedEpisode(t, db, 42, 1, 1, 101)

	if err := sync.RefreshEpisode(context.Background(), seeded.ID); err != nil {
		t.Fatalf("fully-degraded refresh must not error: %v", err)
	}
	if NewRefreshPolicy(db).HasSucceeded(models.EpisodeScope(seeded.ID)) {
		t.Error("a refresh with no provider answering must not record the marker")
	}

	episode, _ := db.GetEpisode(seeded.ID)
	if episode.TraktID != 101 {
		t.Errorf("stored episode changed without provider data: %+v", episode)
	}
}

func TestSyncShowWatchesFullReplacesUnconfirmed(t *testing.T) {
	watches := &fakeWatches{showWatches: []models.RemoteWatch{
		{ID: 9001, EpisodeTraktID: 101, WatchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	episode := seedEpisode(t, db, 42, 1, 1, 101)

	// A remote-confirmed entry the server no longer reports, and a pending
	// upload the server never saw
	if err := db.UpsertRemoteWatches([]*models.EpisodeWatch{
		{EpisodeID: episode.ID, ShowID: 42, TraktID: 7000, WatchedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	}); err != nil {
		t.Fatalf("seed confirmed watch: %v", err)
	}
	if err := db.CreateWatches([]*models.EpisodeWatch{
		{EpisodeID: episode.ID, ShowID: 42, WatchedAt: time.Now(), PendingAction: models.PendingUpload},
	}); err != nil {
		t.Fatalf("seed pending watch: %v", err)
	}

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeFull, true, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	all, err := db.GetWatchesForEpisode(episode.ID)
	if err != nil {
		t.Fatalf("get watches: %v", err)
	}

	var confirmed, pending int
	for _, watch := range all {
		switch watch.PendingAction {
		case models.PendingNone:
			confirmed++
			if watch.TraktID != 9001 {
				t.Errorf("stale confirmed entry survived the full sync: %+v", watch)
			}
		case models.PendingUpload:
			pending++
		}
	}
	if confirmed != 1 {
		t.Errorf("expected exactly the reconfirmed entry, got %d confirmed", confirmed)
	}
	if pending != 1 {
		t.Error("pending entries are owned by the queue and must survive a full sync")
	}
}

func TestSyncShowWatchesDeltaBoundary(t *testing.T) {
	lastKnown := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	watches := &fakeWatches{}
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	seedEpisode(t, db, 42, 1, 1, 101)

	// A prior successful sync makes the delta path eligible
	policy := NewRefreshPolicy(db)
	if err := policy.RecordSuccess(models.WatchScope(42)); err != nil {
		t.Fatalf("record success: %v", err)
	}

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeQuick, true, &lastKnown); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if watches.lastSince == nil {
		t.Fatal("quick mode with a known time must issue a delta fetch")
	}
	if want := lastKnown.Add(time.Second); !watches.lastSince.Equal(want) {
		t.Errorf("delta must start 1s past the boundary: got %v, want %v", watches.lastSince, want)
	}
}

func TestSyncShowWatchesDeltaNeverRemoves(t *testing.T) {
	lastKnown := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	watches := &fakeWatches{} // empty delta response
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	episode := seedEpisode(t, db, 42, 1, 1, 101)
	if err := db.UpsertRemoteWatches([]*models.EpisodeWatch{
		{EpisodeID: episode.ID, ShowID: 42, TraktID: 7000, WatchedAt: lastKnown},
	}); err != nil {
		t.Fatalf("seed confirmed watch: %v", err)
	}
	policy := NewRefreshPolicy(db)
	if err := policy.RecordSuccess(models.WatchScope(42)); err != nil {
		t.Fatalf("record success: %v", err)
	}

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeQuick, true, &lastKnown); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	remaining, _ := db.GetWatchesForEpisode(episode.ID)
	if len(remaining) != 1 {
		t.Errorf("delta sync removed entries: %d left", len(remaining))
	}
}

func TestSyncShowWatchesFullModeIgnoresDelta(t *testing.T) {
	lastKnown := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	watches := &fakeWatches{}
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	policy := NewRefreshPolicy(db)
	if err := policy.RecordSuccess(models.WatchScope(42)); err != nil {
		t.Fatalf("record success: %v", err)
	}

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeFull, true, &lastKnown); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if watches.lastSince != nil {
		t.Error("full mode must never issue a delta fetch")
	}
}

func TestSyncShowWatchesDropsUnresolvedEpisodes(t *testing.T) {
	watches := &fakeWatches{showWatches: []models.RemoteWatch{
		{ID: 1, EpisodeTraktID: 101, WatchedAt: time.Now()},
		{ID: 2, EpisodeTraktID: 5555, WatchedAt: time.Now()}, // unknown locally
	}}
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	episode := seedEpisode(t, db, 42, 1, 1, 101)

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeFull, true, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	stored, _ := db.GetWatchesForEpisode(episode.ID)
	if len(stored) != 1 || stored[0].TraktID != 1 {
		t.Errorf("expected only the resolvable watch stored: %+v", stored)
	}
}

func TestSyncShowWatchesFreshScopeSkips(t *testing.T) {
	watches := &fakeWatches{}
	sync, db := newTestSync(t, &fakeMetadata{}, &fakeMetadata{}, watches, true)

	policy := NewRefreshPolicy(db)
	if err := policy.RecordSuccess(models.WatchScope(42)); err != nil {
		t.Fatalf("record success: %v", err)
	}

	if err := sync.SyncShowWatches(context.Background(), 42, models.SyncModeQuick, false, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(watches.ops) != 0 {
		t.Error("fresh scope without force must not touch the network")
	}
}
