package domain

import "time"

// CandidateItem is one piece of content fetched from a source channel,
// pending eligibility evaluation.
type CandidateItem struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	ViewCount int64  `json:"view_count"`
	SourceURL string `json:"source_url"`
}

// TokenStatus is the read-only auth state surfaced on the reporting API.
// Refresh is triggered externally, never by this service.
type TokenStatus struct {
	Valid      bool       `json:"valid"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	HasRefresh bool       `json:"has_refresh"`
	Message    string     `json:"message,omitempty"`
}

// RunTotals accumulates processing counters across orchestrator cycles.
type RunTotals struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalUploaded  int64 `json:"total_uploaded"`
	TotalFailed    int64 `json:"total_failed"`
	TotalDeferred  int64 `json:"total_deferred"`
}
