// Package uploader is the HTTP client for the upload sidecar, which performs
// the actual video download and YouTube publish.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Client talks to the upload sidecar.
type Client struct {
	url    string
	token  string
	client *http.Client
	logger logger.Logger
}

// uploadRequest is the sidecar's publish payload.
type uploadRequest struct {
	VideoID   string `json:"video_id"`
	ChannelID string `json:"channel_id"`
	SourceURL string `json:"source_url"`
	ViewCount int64  `json:"view_count"`
}

// NewClient creates an uploader client from config. The HTTP client carries
// no timeout of its own; publish deadlines come from the caller's context.
func NewClient(cfg *config.ServiceConfig, log logger.Logger) *Client {
	return &Client{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{},
		logger: log,
	}
}

// Publish hands a candidate to the upload sidecar and blocks until the
// publish completes or ctx expires.
func (c *Client) Publish(ctx context.Context, candidate domain.CandidateItem) error {
	body, err := json.Marshal(uploadRequest{
		VideoID:   candidate.ID,
		ChannelID: candidate.ChannelID,
		SourceURL: candidate.SourceURL,
		ViewCount: candidate.ViewCount,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.url + "/api/v1/uploads"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Warn("Upload request failed",
			logger.String("video_id", candidate.ID),
			logger.Duration("duration", duration),
			logger.Error(err),
		)
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Upload sidecar rejected candidate",
			logger.String("video_id", candidate.ID),
			logger.Int("status_code", resp.StatusCode),
			logger.Duration("duration", duration),
		)
		return fmt.Errorf("upload sidecar returned status %d: %s", resp.StatusCode, string(detail))
	}

	c.logger.Info("Published candidate",
		logger.String("video_id", candidate.ID),
		logger.String("channel_id", candidate.ChannelID),
		logger.Duration("duration", duration),
	)
	return nil
}

// VideoExists asks the upload sidecar whether a candidate is already live
// on the destination channel.
func (c *Client) VideoExists(ctx context.Context, candidateID string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/uploads/%s", c.url, candidateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("upload sidecar returned status %d", resp.StatusCode)
	}
}
