// Package stats maintains the per-channel view-count sample window the
// threshold engine reads from.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Store persists channel stat samples.
type Store interface {
	RecordSample(ctx context.Context, sample *domain.ChannelStatSample) error
	RecentSamples(ctx context.Context, channelID string, limit int) ([]domain.ChannelStatSample, error)
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}

// Window records observations and serves the trailing sample window for a
// channel. Samples are append-only; old ones age out via Prune.
type Window struct {
	store     Store
	size      int
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
}

// NewWindow builds a sample window. size is the number of trailing samples
// served per channel; retention bounds how long samples are kept at all.
func NewWindow(store Store, size int, retention time.Duration, now func() time.Time, log logger.Logger) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{store: store, size: size, retention: retention, now: now, log: log}
}

// Observe records one view-count reading for a channel.
func (w *Window) Observe(ctx context.Context, channelID string, viewCount int64) error {
	if channelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrInvalidOperation)
	}
	if viewCount < 0 {
		return fmt.Errorf("%w: view count must be non-negative", domain.ErrInvalidOperation)
	}
	sample := &domain.ChannelStatSample{
		ChannelID:  channelID,
		ViewCount:  viewCount,
		ObservedAt: w.now(),
	}
	if err := w.store.RecordSample(ctx, sample); err != nil {
		return fmt.Errorf("observe channel stats: %w", err)
	}
	return nil
}

// Samples returns the trailing window for a channel, oldest first.
func (w *Window) Samples(ctx context.Context, channelID string) ([]domain.ChannelStatSample, error) {
	samples, err := w.store.RecentSamples(ctx, channelID, w.size)
	if err != nil {
		return nil, fmt.Errorf("load sample window: %w", err)
	}
	return samples, nil
}

// Prune drops samples older than the retention horizon.
func (w *Window) Prune(ctx context.Context) (int64, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	cutoff := w.now().Add(-w.retention)
	removed, err := w.store.PruneSamples(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sample window: %w", err)
	}
	if removed > 0 {
		w.log.Info("pruned aged channel stat samples",
			logger.Int64("removed", removed),
			logger.Time("cutoff", cutoff))
	}
	return removed, nil
}
