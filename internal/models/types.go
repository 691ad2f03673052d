package models

import "fmt"

// PendingAction marks the outstanding remote reconciliation work for a watch entry
type PendingAction string

const (
	PendingNone   PendingAction = "none"   // Fully reconciled with remote
	PendingUpload PendingAction = "upload" // Created locally, upload owed
	PendingDelete PendingAction = "delete" // Soft-deleted locally, remote removal owed
)

// SyncMode selects the watch-history sync strategy
type SyncMode string

const (
	SyncModeQuick SyncMode = "quick" // Delta fetch when possible
	SyncModeFull  SyncMode = "full"  // Always a full fetch
)

// SeasonScope returns the refresh-policy scope key for a show's season metadata
func SeasonScope(showID uint64) string {
	return fmt.Sprintf("show:%d:seasons", showID)
}

// WatchScope returns the refresh-policy scope key for a show's watch history
func WatchScope(showID uint64) string {
	return fmt.Sprintf("show:%d:watches", showID)
}

// EpisodeScope returns the refresh-policy scope key for one episode's metadata
func EpisodeScope(episodeID uint64) string {
	return fmt.Sprintf("episode:%d", episodeID)
}
