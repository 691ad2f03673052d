package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler reports library and pending-queue counts
type StatusHandler struct {
	db      *models.Database
	session interface{ IsAuthenticated() bool }
	logger  *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, session interface{ IsAuthenticated() bool }, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{db: db, session: session, logger: logger}
}

// ServeHTTP handles the status request
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pendingUploads, err := h.db.CountWatchesWithPendingAction(models.PendingUpload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count pending uploads")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pendingDeletes, err := h.db.CountWatchesWithPendingAction(models.PendingDelete)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count pending deletes")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	showIDs, err := h.db.ListShowIDs()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list shows")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"shows":           len(showIDs),
		"pending_uploads": pendingUploads,
		"pending_deletes": pendingDeletes,
		"authenticated":   h.session.IsAuthenticated(),
	})
}
