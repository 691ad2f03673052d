package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/trackarr/internal/config"
	"github.com/amaumene/trackarr/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const baseURL = "https://api.themoviedb.org/3"

// ShowIDResolver maps the app-wide show id to the cross-provider id set.
// Wired to the Trakt client's id lookup in the composition root.
type ShowIDResolver func(ctx context.Context, showID uint64) (models.ShowIDs, error)

// Client handles communication with the TMDB API
type Client struct {
	apiKey     string
	httpClient *http.Client
	resolver   ShowIDResolver
	idCache    *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a new TMDB client. Resolved TMDB show ids are cached for
// a day; the mapping never changes in practice and the lookup is hot.
func NewClient(cfg *config.Config, resolver ShowIDResolver, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.TMDBAPIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		resolver:   resolver,
		idCache:    cache.New(24*time.Hour, time.Hour),
		logger:     logger,
	}
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	fullURL := baseURL + path + separator + "api_key=" + c.apiKey

	c.logger.WithField("path", path).Debug("Making TMDB API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// tmdbShowID resolves and caches the TMDB id of a show
func (c *Client) tmdbShowID(ctx context.Context, showID uint64) (int64, error) {
	key := strconv.FormatUint(showID, 10)
	if cached, ok := c.idCache.Get(key); ok {
		return cached.(int64), nil
	}

	ids, err := c.resolver(ctx, showID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve show %d: %w", showID, err)
	}
	if ids.TMDB == 0 {
		return 0, fmt.Errorf("show %d has no TMDB id", showID)
	}

	c.idCache.Set(key, ids.TMDB, cache.DefaultExpiration)
	return ids.TMDB, nil
}
