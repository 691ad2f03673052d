package trakt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type staticTokenStore struct {
	token *Token
}

func (s *staticTokenStore) GetToken() (*Token, error)    { return s.token, nil }
func (s *staticTokenStore) SaveToken(token *Token) error { s.token = token; return nil }

func newTestClient(server *httptest.Server) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Client{
		baseURL:  server.URL,
		clientID: "test-client",
		tokenStore: &staticTokenStore{token: &Token{
			AccessToken: "token",
			ExpiresAt:   time.Now().Add(48 * time.Hour),
		}},
		httpClient:  server.Client(),
		logger:      logger,
		seasonETags: make(map[uint64]string),
	}
}

func historyEntry(id, episodeTraktID int64) string {
	return fmt.Sprintf(`{"id":%d,"watched_at":"2024-01-01T00:00:00Z","action":"watch","type":"episode","episode":{"season":1,"number":1,"ids":{"trakt":%d}}}`, id, episodeTraktID)
}

func TestGetShowWatchesWalksAllPages(t *testing.T) {
	var requestedPages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requestedPages = append(requestedPages, page)
		w.Header().Set("X-Pagination-Page-Count", "2")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprintf(w, "[%s,%s]", historyEntry(1, 101), historyEntry(2, 102))
		case "2":
			fmt.Fprintf(w, "[%s]", historyEntry(3, 103))
		default:
			t.Errorf("unexpected page requested: %q", page)
			fmt.Fprint(w, "[]")
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	watches, err := client.GetShowWatches(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("get show watches failed: %v", err)
	}

	if len(requestedPages) != 2 {
		t.Fatalf("expected both pages fetched, got %v", requestedPages)
	}
	if len(watches) != 3 {
		t.Fatalf("expected 3 watches across pages, got %d", len(watches))
	}
	if watches[0].ID != 1 || watches[2].ID != 3 {
		t.Errorf("page order lost: %+v", watches)
	}
}

func TestGetShowWatchesSinglePage(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("X-Pagination-Page-Count", "1")
		w.Header().Set("Content-Type", "application/json")
		// A movie entry must be filtered out
		fmt.Fprintf(w, `[%s,{"id":9,"watched_at":"2024-01-01T00:00:00Z","action":"watch","type":"movie"}]`, historyEntry(1, 101))
	}))
	defer server.Close()

	client := newTestClient(server)
	watches, err := client.GetShowWatches(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("get show watches failed: %v", err)
	}

	if requests != 1 {
		t.Errorf("expected a single request, got %d", requests)
	}
	if len(watches) != 1 || watches[0].EpisodeTraktID != 101 {
		t.Errorf("expected only the episode entry, got %+v", watches)
	}
}

func TestGetShowWatchesPassesStartAt(t *testing.T) {
	var gotStartAt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStartAt = r.URL.Query().Get("start_at")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	client := newTestClient(server)
	since := time.Date(2024, 3, 10, 12, 0, 1, 0, time.UTC)
	if _, err := client.GetShowWatches(context.Background(), 7, &since); err != nil {
		t.Fatalf("get show watches failed: %v", err)
	}

	if gotStartAt != "2024-03-10T12:00:01Z" {
		t.Errorf("start_at not forwarded: %q", gotStartAt)
	}
}
