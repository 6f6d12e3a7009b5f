// Package threshold classifies channels by size and computes the dynamic
// view-count bar a candidate must clear before it is queued for upload.
package threshold

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Engine computes per-channel thresholds from the current sample window.
// Thresholds are recomputed every scheduling cycle; the engine only keeps
// the latest value per channel for reporting.
type Engine struct {
	cfg config.ThresholdConfig
	log logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	current map[string]domain.Threshold
}

// NewEngine creates a threshold engine.
func NewEngine(cfg config.ThresholdConfig, log logger.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		current: make(map[string]domain.Threshold),
	}
}

// Profile derives channel statistics from the sample window. Returns
// domain.ErrInsufficientData when the window is empty.
func (e *Engine) Profile(channelID, groupID string, samples []domain.ChannelStatSample) (domain.ChannelProfile, error) {
	if len(samples) == 0 {
		return domain.ChannelProfile{}, fmt.Errorf("%w: channel %s has no samples", domain.ErrInsufficientData, channelID)
	}

	views := make([]float64, len(samples))
	var sum float64
	for i := range samples {
		views[i] = float64(samples[i].ViewCount)
		sum += views[i]
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i] < views[j] })

	avg := sum / float64(len(views))

	return domain.ChannelProfile{
		ChannelID:    channelID,
		GroupID:      groupID,
		AverageViews: avg,
		MedianViews:  percentile(views, 0.50),
		P75Views:     percentile(views, 0.75),
		SizeClass:    e.classify(avg),
		SampleCount:  len(samples),
	}, nil
}

// Compute classifies the channel and returns its threshold. The caller must
// fall back to Fallback on domain.ErrInsufficientData.
func (e *Engine) Compute(channelID, groupID string, samples []domain.ChannelStatSample) (domain.Threshold, error) {
	profile, err := e.Profile(channelID, groupID, samples)
	if err != nil {
		return domain.Threshold{}, err
	}

	var (
		raw   float64
		floor int64
		basis string
		value float64
	)
	switch profile.SizeClass {
	case domain.SizeSmall:
		raw, floor = e.cfg.SmallRatio*profile.AverageViews, e.cfg.SmallFloor
		basis, value = "average_views", profile.AverageViews
	case domain.SizeMedium:
		raw, floor = e.cfg.MediumRatio*profile.MedianViews, e.cfg.MediumFloor
		basis, value = "median_views", profile.MedianViews
	default:
		raw, floor = e.cfg.LargeRatio*profile.P75Views, e.cfg.LargeFloor
		basis, value = "p75_views", profile.P75Views
	}

	bar := int64(raw)
	if bar < floor {
		bar = floor
	}
	if e.cfg.Ceiling > 0 && bar > e.cfg.Ceiling {
		bar = e.cfg.Ceiling
	}

	t := domain.Threshold{
		ChannelID:   channelID,
		Value:       bar,
		SizeClass:   profile.SizeClass,
		BasisMetric: basis,
		BasisValue:  value,
		ComputedAt:  e.now(),
	}
	e.remember(t)

	e.log.Debug("computed dynamic threshold",
		logger.String("channel_id", channelID),
		logger.String("size_class", string(profile.SizeClass)),
		logger.Int64("threshold", bar),
		logger.Float64("average_views", profile.AverageViews),
		logger.Float64("median_views", profile.MedianViews))

	return t, nil
}

// Fallback returns the configured default threshold for channels without
// enough history to classify.
func (e *Engine) Fallback(channelID string) domain.Threshold {
	t := domain.Threshold{
		ChannelID:   channelID,
		Value:       e.cfg.Default,
		SizeClass:   domain.SizeSmall,
		BasisMetric: "default",
		BasisValue:  float64(e.cfg.Default),
		ComputedAt:  e.now(),
	}
	e.remember(t)
	return t
}

// CurrentThresholds returns the most recently computed threshold per channel.
func (e *Engine) CurrentThresholds() []domain.Threshold {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Threshold, 0, len(e.current))
	for _, t := range e.current {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

func (e *Engine) remember(t domain.Threshold) {
	e.mu.Lock()
	e.current[t.ChannelID] = t
	e.mu.Unlock()
}

func (e *Engine) classify(avg float64) domain.SizeClass {
	switch {
	case avg < float64(e.cfg.SmallMaxAverage):
		return domain.SizeSmall
	case avg <= float64(e.cfg.MediumMaxAverage):
		return domain.SizeMedium
	default:
		return domain.SizeLarge
	}
}

// percentile computes the p-th percentile of sorted values using linear
// interpolation between ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p * float64(len(sorted)-1)
	lower := int(rank)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
