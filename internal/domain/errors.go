// Package domain contains the core domain models for the shortsync service.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity is not found in storage.
var ErrNotFound = errors.New("entity not found")

// ErrInsufficientData is returned when a channel has no stat samples to
// classify. Callers fall back to the configured default threshold.
var ErrInsufficientData = errors.New("insufficient channel data")

// ErrQuotaExceeded is returned when a debit would push the day's usage past
// the daily budget. The ledger state is left unchanged.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// ErrGroupBusy is returned when a group is claimed while already running.
var ErrGroupBusy = errors.New("group already running")

// ErrInvalidOperation is returned for malformed debit requests (negative
// cost or count, empty operation name). This indicates a caller bug and is
// never retried.
var ErrInvalidOperation = errors.New("invalid quota operation")

// ErrGroupPaused is returned when a paused group is claimed or triggered.
var ErrGroupPaused = errors.New("group is paused")

// FetchError wraps a failure from the ingestion collaborator for one channel.
type FetchError struct {
	ChannelID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch candidates for channel %s: %v", e.ChannelID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PublishError wraps a failure from the publishing collaborator for one
// candidate. Failed candidates are counted and never block siblings.
type PublishError struct {
	CandidateID string
	Err         error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish candidate %s: %v", e.CandidateID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
