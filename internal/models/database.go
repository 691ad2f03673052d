package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Season operations

// GetSeason retrieves a season by local id
func (db *Database) GetSeason(id uint64) (*Season, error) {
	var season Season
	if err := db.store.Get(id, &season); err != nil {
		return nil, err
	}
	return &season, nil
}

// GetSeasonByTraktID retrieves the season of a show matching a Trakt season id
func (db *Database) GetSeasonByTraktID(showID uint64, traktID int64) (*Season, error) {
	var season Season
	err := db.store.FindOne(&season,
		bolthold.Where("ShowID").Eq(showID).And("TraktID").Eq(traktID))
	if err != nil {
		return nil, err
	}
	return &season, nil
}

// GetSeasonsForShow retrieves all seasons of a show
func (db *Database) GetSeasonsForShow(showID uint64) ([]*Season, error) {
	var seasons []*Season
	err := db.store.Find(&seasons,
		bolthold.Where("ShowID").Eq(showID).SortBy("Number"))
	return seasons, err
}

// ListShowIDs returns the distinct show ids the library knows about
func (db *Database) ListShowIDs() ([]uint64, error) {
	var seasons []*Season
	if err := db.store.Find(&seasons, nil); err != nil {
		return nil, err
	}

	seen := make(map[uint64]bool)
	var ids []uint64
	for _, season := range seasons {
		if !seen[season.ShowID] {
			seen[season.ShowID] = true
			ids = append(ids, season.ShowID)
		}
	}
	return ids, nil
}

// Episode operations

// GetEpisode retrieves an episode by local id
func (db *Database) GetEpisode(id uint64) (*Episode, error) {
	var episode Episode
	if err := db.store.Get(id, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

// GetEpisodeByTraktID retrieves an episode by its Trakt episode id
func (db *Database) GetEpisodeByTraktID(traktID int64) (*Episode, error) {
	var episode Episode
	err := db.store.FindOne(&episode, bolthold.Where("TraktID").Eq(traktID))
	if err != nil {
		return nil, err
	}
	return &episode, nil
}

// GetEpisodeIDForTraktID translates a Trakt episode id to the local episode id
func (db *Database) GetEpisodeIDForTraktID(traktID int64) (uint64, error) {
	episode, err := db.GetEpisodeByTraktID(traktID)
	if err != nil {
		return 0, err
	}
	return episode.ID, nil
}

// GetEpisodesBySeason retrieves all episodes of a season
func (db *Database) GetEpisodesBySeason(seasonID uint64) ([]*Episode, error) {
	var episodes []*Episode
	err := db.store.Find(&episodes,
		bolthold.Where("SeasonID").Eq(seasonID).SortBy("Number"))
	return episodes, err
}

// SaveEpisode persists a single episode (insert when ID is zero)
func (db *Database) SaveEpisode(episode *Episode) error {
	now := time.Now()
	episode.UpdatedAt = now
	if episode.ID == 0 {
		episode.CreatedAt = now
		return db.store.Insert(bolthold.NextSequence(), episode)
	}
	return db.store.Update(episode.ID, episode)
}

// SaveSeasonsAndEpisodes persists a show's merged season+episode trees in one
// atomic batch. New records get ids assigned; episode SeasonID backrefs are
// filled once the owning season has an id.
func (db *Database) SaveSeasonsAndEpisodes(trees []SeasonEpisodes) error {
	now := time.Now()
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, tree := range trees {
			season := tree.Season
			season.UpdatedAt = now
			if season.ID == 0 {
				season.CreatedAt = now
				if err := db.store.TxInsert(tx, bolthold.NextSequence(), season); err != nil {
					return fmt.Errorf("failed to insert season %d: %w", season.Number, err)
				}
			} else {
				if err := db.store.TxUpdate(tx, season.ID, season); err != nil {
					return fmt.Errorf("failed to update season %d: %w", season.ID, err)
				}
			}

			for _, episode := range tree.Episodes {
				episode.SeasonID = season.ID
				episode.ShowID = season.ShowID
				episode.UpdatedAt = now
				if episode.ID == 0 {
					episode.CreatedAt = now
					if err := db.store.TxInsert(tx, bolthold.NextSequence(), episode); err != nil {
						return fmt.Errorf("failed to insert episode %d: %w", episode.Number, err)
					}
				} else {
					if err := db.store.TxUpdate(tx, episode.ID, episode); err != nil {
						return fmt.Errorf("failed to update episode %d: %w", episode.ID, err)
					}
				}
			}
		}
		return nil
	})
}

// DeleteAllForShow removes a show's seasons, episodes and watch entries
func (db *Database) DeleteAllForShow(showID uint64) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		q := bolthold.Where("ShowID").Eq(showID)
		if err := db.store.TxDeleteMatching(tx, &EpisodeWatch{}, q); err != nil {
			return err
		}
		if err := db.store.TxDeleteMatching(tx, &Episode{}, q); err != nil {
			return err
		}
		return db.store.TxDeleteMatching(tx, &Season{}, q)
	})
}

// Watch entry operations

// GetEpisodeWatch retrieves a watch entry by local id
func (db *Database) GetEpisodeWatch(id uint64) (*EpisodeWatch, error) {
	var watch EpisodeWatch
	if err := db.store.Get(id, &watch); err != nil {
		return nil, err
	}
	return &watch, nil
}

// GetWatchesForEpisode retrieves all watch entries of an episode
func (db *Database) GetWatchesForEpisode(episodeID uint64) ([]*EpisodeWatch, error) {
	var watches []*EpisodeWatch
	err := db.store.Find(&watches, bolthold.Where("EpisodeID").Eq(episodeID))
	return watches, err
}

// GetWatchesWithPendingAction retrieves a show's watch entries in one pending bucket
func (db *Database) GetWatchesWithPendingAction(showID uint64, action PendingAction) ([]*EpisodeWatch, error) {
	var watches []*EpisodeWatch
	err := db.store.Find(&watches,
		bolthold.Where("ShowID").Eq(showID).And("PendingAction").Eq(action))
	return watches, err
}

// GetEpisodeWatchesWithPendingAction retrieves an episode's watch entries in one pending bucket
func (db *Database) GetEpisodeWatchesWithPendingAction(episodeID uint64, action PendingAction) ([]*EpisodeWatch, error) {
	var watches []*EpisodeWatch
	err := db.store.Find(&watches,
		bolthold.Where("EpisodeID").Eq(episodeID).And("PendingAction").Eq(action))
	return watches, err
}

// CountWatchesWithPendingAction counts watch entries in one pending bucket across all shows
func (db *Database) CountWatchesWithPendingAction(action PendingAction) (int, error) {
	return db.store.Count(&EpisodeWatch{}, bolthold.Where("PendingAction").Eq(action))
}

// HasEpisodeBeenWatched reports whether an episode has any watch entry that is
// not marked for deletion
func (db *Database) HasEpisodeBeenWatched(episodeID uint64) (bool, error) {
	count, err := db.store.Count(&EpisodeWatch{},
		bolthold.Where("EpisodeID").Eq(episodeID).And("PendingAction").Ne(PendingDelete))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NewestConfirmedWatch returns the watched-at time of the newest remote-confirmed
// watch entry for a show, or nil when there is none
func (db *Database) NewestConfirmedWatch(showID uint64) (*time.Time, error) {
	var watches []*EpisodeWatch
	err := db.store.Find(&watches,
		bolthold.Where("ShowID").Eq(showID).And("PendingAction").Eq(PendingNone))
	if err != nil {
		return nil, err
	}

	var newest *time.Time
	for _, watch := range watches {
		if watch.TraktID == 0 {
			continue
		}
		if newest == nil || watch.WatchedAt.After(*newest) {
			at := watch.WatchedAt
			newest = &at
		}
	}
	return newest, nil
}

// CreateWatches inserts new watch entries in one atomic batch
func (db *Database) CreateWatches(watches []*EpisodeWatch) error {
	now := time.Now()
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, watch := range watches {
			watch.CreatedAt = now
			watch.UpdatedAt = now
			if err := db.store.TxInsert(tx, bolthold.NextSequence(), watch); err != nil {
				return fmt.Errorf("failed to insert watch entry: %w", err)
			}
		}
		return nil
	})
}

// UpdatePendingAction transitions a batch of watch entries to a new pending action
func (db *Database) UpdatePendingAction(ids []uint64, action PendingAction) error {
	now := time.Now()
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			var watch EpisodeWatch
			if err := db.store.TxGet(tx, id, &watch); err != nil {
				return fmt.Errorf("failed to load watch entry %d: %w", id, err)
			}
			watch.PendingAction = action
			watch.UpdatedAt = now
			if err := db.store.TxUpdate(tx, id, &watch); err != nil {
				return fmt.Errorf("failed to update watch entry %d: %w", id, err)
			}
		}
		return nil
	})
}

// DeleteWatches removes watch entries by id in one atomic batch
func (db *Database) DeleteWatches(ids []uint64) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			if err := db.store.TxDelete(tx, id, &EpisodeWatch{}); err != nil && err != bolthold.ErrNotFound {
				return fmt.Errorf("failed to delete watch entry %d: %w", id, err)
			}
		}
		return nil
	})
}

// UpsertRemoteWatches adds or updates remote-confirmed watch entries by their
// server-side id. Used by delta syncs, which never remove anything.
func (db *Database) UpsertRemoteWatches(confirmed []*EpisodeWatch) error {
	now := time.Now()
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, remote := range confirmed {
			var existing EpisodeWatch
			err := db.store.TxFindOne(tx, &existing, bolthold.Where("TraktID").Eq(remote.TraktID))
			switch err {
			case nil:
				existing.EpisodeID = remote.EpisodeID
				existing.ShowID = remote.ShowID
				existing.WatchedAt = remote.WatchedAt
				existing.UpdatedAt = now
				if err := db.store.TxUpdate(tx, existing.ID, &existing); err != nil {
					return fmt.Errorf("failed to update watch entry %d: %w", existing.ID, err)
				}
			case bolthold.ErrNotFound:
				if claimed, err := db.claimLocalWatch(tx, remote); err != nil {
					return err
				} else if claimed {
					continue
				}
				remote.PendingAction = PendingNone
				remote.CreatedAt = now
				remote.UpdatedAt = now
				if err := db.store.TxInsert(tx, bolthold.NextSequence(), remote); err != nil {
					return fmt.Errorf("failed to insert watch entry: %w", err)
				}
			default:
				return err
			}
		}
		return nil
	})
}

// claimLocalWatch absorbs a server-assigned id into a locally-confirmed entry
// that was uploaded earlier, matched by episode and watch time, instead of
// duplicating it
func (db *Database) claimLocalWatch(tx *bbolt.Tx, remote *EpisodeWatch) (bool, error) {
	var candidates []*EpisodeWatch
	err := db.store.TxFind(tx, &candidates,
		bolthold.Where("EpisodeID").Eq(remote.EpisodeID).
			And("TraktID").Eq(int64(0)).
			And("PendingAction").Eq(PendingNone))
	if err != nil {
		return false, err
	}
	for _, local := range candidates {
		if local.WatchedAt.Unix() != remote.WatchedAt.Unix() {
			continue
		}
		local.TraktID = remote.TraktID
		local.WatchedAt = remote.WatchedAt
		local.UpdatedAt = time.Now()
		if err := db.store.TxUpdate(tx, local.ID, local); err != nil {
			return false, fmt.Errorf("failed to update watch entry %d: %w", local.ID, err)
		}
		return true, nil
	}
	return false, nil
}

// ReplaceShowWatches reconciles a show's remote-confirmed watch set against a
// full fetch: entries not reconfirmed are removed, entries still pending or
// never confirmed remotely are left alone
func (db *Database) ReplaceShowWatches(showID uint64, confirmed []*EpisodeWatch) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*EpisodeWatch
		err := db.store.TxFind(tx, &existing,
			bolthold.Where("ShowID").Eq(showID).And("PendingAction").Eq(PendingNone))
		if err != nil {
			return err
		}
		return db.replaceWatches(tx, existing, confirmed)
	})
}

// ReplaceEpisodeWatches is ReplaceShowWatches scoped to one episode
func (db *Database) ReplaceEpisodeWatches(episodeID uint64, confirmed []*EpisodeWatch) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*EpisodeWatch
		err := db.store.TxFind(tx, &existing,
			bolthold.Where("EpisodeID").Eq(episodeID).And("PendingAction").Eq(PendingNone))
		if err != nil {
			return err
		}
		return db.replaceWatches(tx, existing, confirmed)
	})
}

func (db *Database) replaceWatches(tx *bbolt.Tx, existing, confirmed []*EpisodeWatch) error {
	now := time.Now()

	type localKey struct {
		episodeID uint64
		watchedAt int64
	}
	byRemoteID := make(map[int64]*EpisodeWatch)
	byLocal := make(map[localKey]*EpisodeWatch)
	for _, watch := range existing {
		if watch.TraktID != 0 {
			byRemoteID[watch.TraktID] = watch
		} else {
			byLocal[localKey{watch.EpisodeID, watch.WatchedAt.Unix()}] = watch
		}
	}

	for _, remote := range confirmed {
		if current, ok := byRemoteID[remote.TraktID]; ok {
			delete(byRemoteID, remote.TraktID)
			current.EpisodeID = remote.EpisodeID
			current.ShowID = remote.ShowID
			current.WatchedAt = remote.WatchedAt
			current.UpdatedAt = now
			if err := db.store.TxUpdate(tx, current.ID, current); err != nil {
				return fmt.Errorf("failed to update watch entry %d: %w", current.ID, err)
			}
			continue
		}

		// An entry uploaded earlier comes back with its server-assigned id,
		// absorb it instead of duplicating the watch
		if local, ok := byLocal[localKey{remote.EpisodeID, remote.WatchedAt.Unix()}]; ok {
			delete(byLocal, localKey{remote.EpisodeID, remote.WatchedAt.Unix()})
			local.TraktID = remote.TraktID
			local.WatchedAt = remote.WatchedAt
			local.UpdatedAt = now
			if err := db.store.TxUpdate(tx, local.ID, local); err != nil {
				return fmt.Errorf("failed to update watch entry %d: %w", local.ID, err)
			}
			continue
		}

		remote.PendingAction = PendingNone
		remote.CreatedAt = now
		remote.UpdatedAt = now
		if err := db.store.TxInsert(tx, bolthold.NextSequence(), remote); err != nil {
			return fmt.Errorf("failed to insert watch entry: %w", err)
		}
	}

	// Whatever the remote no longer reports is gone
	for _, stale := range byRemoteID {
		if err := db.store.TxDelete(tx, stale.ID, &EpisodeWatch{}); err != nil {
			return fmt.Errorf("failed to delete watch entry %d: %w", stale.ID, err)
		}
	}
	return nil
}

// Last-request operations

// GetLastRequest retrieves the last successful fetch marker for a refresh scope
func (db *Database) GetLastRequest(scope string) (*LastRequest, error) {
	var last LastRequest
	if err := db.store.Get(scope, &last); err != nil {
		return nil, err
	}
	return &last, nil
}

// SaveLastRequest records a successful fetch for a refresh scope
func (db *Database) SaveLastRequest(scope string, at time.Time) error {
	return db.store.Upsert(scope, &LastRequest{Scope: scope, At: at})
}
