package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/trackarr/internal/api/handlers"
	"github.com/amaumene/trackarr/internal/api/middleware"
	"github.com/amaumene/trackarr/internal/config"
	"github.com/amaumene/trackarr/internal/controllers"
	"github.com/amaumene/trackarr/internal/models"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	db          *models.Database
	episodeCtrl *controllers.EpisodeController
	syncCtrl    *controllers.SyncController
	session     controllers.Session
	logger      *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	episodeCtrl *controllers.EpisodeController,
	syncCtrl *controllers.SyncController,
	session controllers.Session,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		db:          db,
		episodeCtrl: episodeCtrl,
		syncCtrl:    syncCtrl,
		session:     session,
		logger:      logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	statusHandler := handlers.NewStatusHandler(s.db, s.session, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	libraryHandler := handlers.NewLibraryHandler(s.episodeCtrl, s.logger)
	mux.HandleFunc("GET /api/shows/{id}/seasons", libraryHandler.Seasons)
	mux.HandleFunc("GET /api/seasons/{id}/episodes", libraryHandler.Episodes)
	mux.HandleFunc("GET /api/episodes/{id}", libraryHandler.Episode)

	watchHandler := handlers.NewWatchHandler(s.episodeCtrl, s.syncCtrl, s.logger)
	mux.HandleFunc("POST /api/episodes/{id}/watched", watchHandler.MarkEpisodeWatched)
	mux.HandleFunc("DELETE /api/episodes/{id}/watched", watchHandler.MarkEpisodeUnwatched)
	mux.HandleFunc("POST /api/seasons/{id}/watched", watchHandler.MarkSeasonWatched)
	mux.HandleFunc("DELETE /api/seasons/{id}/watched", watchHandler.MarkSeasonUnwatched)
	mux.HandleFunc("DELETE /api/watches/{id}", watchHandler.RemoveWatch)
	mux.HandleFunc("POST /api/shows/{id}/sync", watchHandler.SyncShow)
	mux.HandleFunc("DELETE /api/shows/{id}", watchHandler.RemoveShow)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
