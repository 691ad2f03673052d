package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/trackarr/internal/controllers"
	"github.com/sirupsen/logrus"
)

// LibraryHandler serves the locally-stored library. Reads never wait on a
// remote call; the episode detail endpoint refreshes stale metadata first but
// serves what is stored even when the refresh fails.
type LibraryHandler struct {
	episodeCtrl *controllers.EpisodeController
	logger      *logrus.Logger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(episodeCtrl *controllers.EpisodeController, logger *logrus.Logger) *LibraryHandler {
	return &LibraryHandler{episodeCtrl: episodeCtrl, logger: logger}
}

// Seasons handles GET /api/shows/{id}/seasons
func (h *LibraryHandler) Seasons(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid show id", http.StatusBadRequest)
		return
	}

	seasons, err := h.episodeCtrl.Seasons(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list seasons")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, seasons)
}

// Episodes handles GET /api/seasons/{id}/episodes
func (h *LibraryHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid season id", http.StatusBadRequest)
		return
	}

	episodes, err := h.episodeCtrl.Episodes(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list episodes")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, episodes)
}

// Episode handles GET /api/episodes/{id}: episode detail plus its watch
// entries, with a staleness-gated metadata refresh first
func (h *LibraryHandler) Episode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	if err := h.episodeCtrl.UpdateEpisode(r.Context(), id); err != nil {
		h.logger.WithError(err).WithField("episode_id", id).
			Warn("Episode refresh failed, serving stored data")
	}

	episode, err := h.episodeCtrl.Episode(id)
	if err != nil {
		http.Error(w, "episode not found", http.StatusNotFound)
		return
	}
	watches, err := h.episodeCtrl.Watches(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list watches")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"episode": episode,
		"watches": watches,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
