// Package ingest is the HTTP client for the ingestion sidecar, which scrapes
// source channels and serves repost candidates with their view counts.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Client talks to the ingestion sidecar.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	logger  logger.Logger
}

// CandidatesResponse is the sidecar's candidate listing payload.
type CandidatesResponse struct {
	Candidates []domain.CandidateItem `json:"candidates"`
	Count      int                    `json:"count"`
}

// NewClient creates an ingestion client from config.
func NewClient(cfg *config.ServiceConfig, log logger.Logger) *Client {
	return &Client{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
}

// FetchCandidates lists up to limit fresh candidates for a channel.
func (c *Client) FetchCandidates(ctx context.Context, channelID string, limit int) ([]domain.CandidateItem, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/channels/%s/candidates?limit=%d", c.url, channelID, limit)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Warn("Failed to fetch candidates from ingest service",
			logger.String("url", url),
			logger.Duration("duration", duration),
			logger.Error(err),
		)
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Ingest service returned non-OK status",
			logger.String("url", url),
			logger.Int("status_code", resp.StatusCode),
			logger.Duration("duration", duration),
		)
		return nil, fmt.Errorf("ingest service returned status %d", resp.StatusCode)
	}

	var candidatesResp CandidatesResponse
	if err = json.NewDecoder(resp.Body).Decode(&candidatesResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("Fetched candidates from ingest service",
		logger.String("channel_id", channelID),
		logger.Int("candidate_count", candidatesResp.Count),
		logger.Duration("duration", duration),
	)
	return candidatesResp.Candidates, nil
}

// Status reports the sidecar's publishing-credential state.
func (c *Client) Status(ctx context.Context) (domain.TokenStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.url + "/api/v1/token"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return domain.TokenStatus{}, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.TokenStatus{}, fmt.Errorf("fetch token status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TokenStatus{}, fmt.Errorf("ingest service returned status %d", resp.StatusCode)
	}

	var status domain.TokenStatus
	if err = json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return domain.TokenStatus{}, fmt.Errorf("decode response: %w", err)
	}
	return status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
