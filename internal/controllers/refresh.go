package controllers

import (
	"time"

	"github.com/amaumene/trackarr/internal/models"
)

// Default expiry windows; callers may override per operation
const (
	DefaultSeasonExpiry = 7 * 24 * time.Hour
	DefaultWatchExpiry  = 1 * time.Hour
)

// RefreshPolicy decides whether a remote fetch is due for a refresh scope,
// based on the persisted last-successful-request marker
type RefreshPolicy struct {
	db  *models.Database
	now func() time.Time
}

// NewRefreshPolicy creates a new refresh policy
func NewRefreshPolicy(db *models.Database) *RefreshPolicy {
	return &RefreshPolicy{db: db, now: time.Now}
}

// IsStale reports whether the scope has no successful fetch on record, or the
// last one is older than maxAge
func (p *RefreshPolicy) IsStale(scope string, maxAge time.Duration) bool {
	last, err := p.db.GetLastRequest(scope)
	if err != nil {
		return true
	}
	return last.At.Before(p.now().Add(-maxAge))
}

// HasSucceeded reports whether the scope has ever had a successful fetch
func (p *RefreshPolicy) HasSucceeded(scope string) bool {
	_, err := p.db.GetLastRequest(scope)
	return err == nil
}

// RecordSuccess persists a new last-request marker for the scope. Call only
// after the remote fetch actually succeeded.
func (p *RefreshPolicy) RecordSuccess(scope string) error {
	return p.db.SaveLastRequest(scope, p.now())
}
