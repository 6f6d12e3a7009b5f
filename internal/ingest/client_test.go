package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	return NewClient(&config.ServiceConfig{
		URL:     srv.URL,
		Token:   token,
		Timeout: 5 * time.Second,
	}, logger.NewNopLogger())
}

func TestFetchCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/channels/chan-1/candidates", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		resp := CandidatesResponse{
			Candidates: []domain.CandidateItem{
				{ID: "vid-1", ChannelID: "chan-1", ViewCount: 15000, SourceURL: "https://example.com/vid-1"},
				{ID: "vid-2", ChannelID: "chan-1", ViewCount: 42000, SourceURL: "https://example.com/vid-2"},
			},
			Count: 2,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "secret")

	candidates, err := client.FetchCandidates(context.Background(), "chan-1", 25)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "vid-1", candidates[0].ID)
	assert.Equal(t, int64(42000), candidates[1].ViewCount)
}

func TestFetchCandidatesNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CandidatesResponse{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "")

	candidates, err := client.FetchCandidates(context.Background(), "chan-1", 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFetchCandidatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "")

	_, err := client.FetchCandidates(context.Background(), "chan-1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestFetchCandidatesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client := newTestClient(t, srv, "")

	_, err := client.FetchCandidates(context.Background(), "chan-1", 10)
	require.Error(t, err)
}

func TestTokenStatus(t *testing.T) {
	expiry := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.TokenStatus{
			Valid:      true,
			Expiry:     &expiry,
			HasRefresh: true,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "")

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.True(t, status.HasRefresh)
	require.NotNil(t, status.Expiry)
	assert.True(t, expiry.Equal(*status.Expiry))
}

func TestTokenStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "")

	_, err := client.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
