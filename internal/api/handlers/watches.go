package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/amaumene/trackarr/internal/controllers"
	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// WatchHandler exposes the user-facing watch mutations and sync triggers
type WatchHandler struct {
	episodeCtrl *controllers.EpisodeController
	syncCtrl    *controllers.SyncController
	logger      *logrus.Logger
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(episodeCtrl *controllers.EpisodeController, syncCtrl *controllers.SyncController, logger *logrus.Logger) *WatchHandler {
	return &WatchHandler{episodeCtrl: episodeCtrl, syncCtrl: syncCtrl, logger: logger}
}

func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	return id, err == nil
}

// writeError maps a facade error to 404 when the record does not exist and
// 500 otherwise, never echoing internal error text to the client
func writeError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, notFound, http.StatusNotFound)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// MarkEpisodeWatched handles POST /api/episodes/{id}/watched.
// Body may carry {"watched_at": RFC3339}; defaults to now.
func (h *WatchHandler) MarkEpisodeWatched(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	at := time.Now()
	var body struct {
		WatchedAt *time.Time `json:"watched_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.WatchedAt != nil {
		at = *body.WatchedAt
	}

	if err := h.episodeCtrl.MarkEpisodeWatched(r.Context(), id, at); err != nil {
		h.logger.WithError(err).Error("Failed to mark episode watched")
		writeError(w, err, "episode not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkEpisodeUnwatched handles DELETE /api/episodes/{id}/watched
func (h *WatchHandler) MarkEpisodeUnwatched(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	if err := h.episodeCtrl.MarkEpisodeUnwatched(r.Context(), id); err != nil {
		h.logger.WithError(err).Error("Failed to mark episode unwatched")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkSeasonWatched handles POST /api/seasons/{id}/watched.
// Query params: only_aired=true, use_air_date=true.
func (h *WatchHandler) MarkSeasonWatched(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid season id", http.StatusBadRequest)
		return
	}

	onlyAired := r.URL.Query().Get("only_aired") == "true"
	useAirDate := r.URL.Query().Get("use_air_date") == "true"

	if err := h.episodeCtrl.MarkSeasonWatched(r.Context(), id, onlyAired, useAirDate); err != nil {
		h.logger.WithError(err).Error("Failed to mark season watched")
		writeError(w, err, "season not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkSeasonUnwatched handles DELETE /api/seasons/{id}/watched
func (h *WatchHandler) MarkSeasonUnwatched(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid season id", http.StatusBadRequest)
		return
	}

	if err := h.episodeCtrl.MarkSeasonUnwatched(r.Context(), id); err != nil {
		h.logger.WithError(err).Error("Failed to mark season unwatched")
		writeError(w, err, "season not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveWatch handles DELETE /api/watches/{id}
func (h *WatchHandler) RemoveWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid watch id", http.StatusBadRequest)
		return
	}

	if err := h.episodeCtrl.RemoveWatchEntry(r.Context(), id); err != nil {
		h.logger.WithError(err).Error("Failed to remove watch entry")
		writeError(w, err, "watch entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveShow handles DELETE /api/shows/{id}: drops the show locally
func (h *WatchHandler) RemoveShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid show id", http.StatusBadRequest)
		return
	}

	if err := h.episodeCtrl.RemoveShow(id); err != nil {
		h.logger.WithError(err).Error("Failed to remove show")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncShow handles POST /api/shows/{id}/sync: refreshes metadata and then the
// watch history. This is also how a new show enters the library.
func (h *WatchHandler) SyncShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid show id", http.StatusBadRequest)
		return
	}

	if err := h.syncCtrl.RefreshSeasonsEpisodes(r.Context(), id); err != nil {
		h.logger.WithError(err).Error("Failed to refresh show metadata")
		http.Error(w, "sync failed", http.StatusBadGateway)
		return
	}
	if err := h.syncCtrl.SyncShowWatches(r.Context(), id, models.SyncModeFull, true, nil); err != nil {
		h.logger.WithError(err).Error("Failed to sync show watches")
		http.Error(w, "sync failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
