package domain

import "time"

// ChannelStatSample is one observed view-count reading for a channel.
// Samples are immutable once recorded; pruning is a storage concern.
type ChannelStatSample struct {
	ID         int64     `db:"id"          json:"id"`
	ChannelID  string    `db:"channel_id"  json:"channel_id"`
	ViewCount  int64     `db:"view_count"  json:"view_count"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`
}

// SizeClass buckets a channel by its average views over the sample window.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// ChannelProfile is derived from the current sample window, never stored.
type ChannelProfile struct {
	ChannelID    string    `json:"channel_id"`
	GroupID      string    `json:"group_id,omitempty"`
	AverageViews float64   `json:"average_views"`
	MedianViews  float64   `json:"median_views"`
	P75Views     float64   `json:"p75_views"`
	SizeClass    SizeClass `json:"size_class"`
	SampleCount  int       `json:"sample_count"`
}

// Threshold is the minimum view count a candidate must reach to be eligible
// for republishing, anchored to the channel's own distribution.
type Threshold struct {
	ChannelID   string    `json:"channel_id"`
	Value       int64     `json:"threshold_value"`
	SizeClass   SizeClass `json:"size_class"`
	BasisMetric string    `json:"basis_metric"`
	BasisValue  float64   `json:"basis_value"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Eligible reports whether a candidate's observed view count clears the bar.
func (t *Threshold) Eligible(viewCount int64) bool {
	return viewCount >= t.Value
}
