package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/amaumene/trackarr/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	baseURL    = "https://api.trakt.tv"
	apiVersion = "2"
)

// Client handles communication with the Trakt API
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	tokenStore   TokenStore
	httpClient   *http.Client
	logger       *logrus.Logger

	// last ETag per show for conditional season fetches
	etagMu      sync.Mutex
	seasonETags map[uint64]string
}

// NewClient creates a new Trakt API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	tokenStore, err := NewFileTokenStore(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return &Client{
		baseURL:      baseURL,
		clientID:     cfg.TraktClientID,
		clientSecret: cfg.TraktClientSecret,
		tokenStore:   tokenStore,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		seasonETags:  make(map[uint64]string),
	}, nil
}

// doRequest performs an authenticated HTTP request to the Trakt API
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	resp, err := c.send(ctx, method, path, "", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// getPaged performs a GET and reports the total page count from the
// X-Pagination-Page-Count header, 1 when the endpoint is not paginated
func (c *Client) getPaged(ctx context.Context, path string, result interface{}) (int, error) {
	resp, err := c.send(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	pageCount := 1
	if header := resp.Header.Get("X-Pagination-Page-Count"); header != "" {
		if n, err := strconv.Atoi(header); err == nil && n > 0 {
			pageCount = n
		}
	}
	return pageCount, nil
}

// getWithETag performs a conditional GET. When the server answers 304 the
// result is left untouched and notModified is true.
func (c *Client) getWithETag(ctx context.Context, path, etag string, result interface{}) (notModified bool, newETag string, err error) {
	resp, err := c.send(ctx, http.MethodGet, path, etag, nil)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return true, etag, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return false, "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, "", fmt.Errorf("failed to decode response: %w", err)
	}
	return false, resp.Header.Get("ETag"), nil
}

func (c *Client) send(ctx context.Context, method, path, etag string, body interface{}) (*http.Response, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure valid token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	fullURL := c.baseURL + path
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Trakt API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	token, err := c.tokenStore.GetToken()
	if err == nil && token != nil {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// ensureValidToken checks if the current token is valid and refreshes if needed
func (c *Client) ensureValidToken(ctx context.Context) error {
	token, err := c.tokenStore.GetToken()
	if err != nil {
		c.logger.Debug("No valid token found, authentication required")
		return nil
	}

	// Refresh tokens that expire within 24 hours
	if time.Until(token.ExpiresAt) < 24*time.Hour {
		c.logger.Info("Token expires soon, refreshing...")
		return c.RefreshToken(ctx)
	}
	return nil
}

// IsAuthenticated reports whether a usable session token is on file. The sync
// controller polls this before every remote operation.
func (c *Client) IsAuthenticated() bool {
	token, err := c.tokenStore.GetToken()
	if err != nil || token == nil {
		return false
	}
	return token.ExpiresAt.After(time.Now())
}
