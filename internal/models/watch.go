package models

import "time"

// EpisodeWatch records one instance of the user watching an episode.
//
// Entries created by a local mutation start with PendingUpload; entries pulled
// from remote history start with PendingNone and carry the server-assigned
// TraktID. Un-marking a watch flips it to PendingDelete so the removal can be
// propagated before the row disappears.
type EpisodeWatch struct {
	ID        uint64 `boltholdKey:"ID"`
	EpisodeID uint64 `boltholdIndex:"EpisodeID"`
	ShowID    uint64 `boltholdIndex:"ShowID"`

	TraktID int64 // server-side history id, 0 until confirmed remotely

	WatchedAt     time.Time
	PendingAction PendingAction `boltholdIndex:"PendingAction"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemoteWatch is one watch entry as reported by the watch-history source
type RemoteWatch struct {
	ID             int64 // server-side history id
	EpisodeTraktID int64
	WatchedAt      time.Time
}

// WatchUpload is one locally-created watch entry queued for remote creation
type WatchUpload struct {
	EpisodeTraktID int64
	WatchedAt      time.Time
}

// LastRequest stores the wall-clock time of the last successful remote fetch
// for one refresh scope (see SeasonScope / WatchScope)
type LastRequest struct {
	Scope string `boltholdKey:"Scope"`
	At    time.Time
}
