// Package cleanup tracks retention accounting reported by the external
// cleanup actor. The service never touches the filesystem itself; it only
// records what was removed and answers summary queries.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Store persists cleanup records.
type Store interface {
	SaveCleanupRecord(ctx context.Context, rec *domain.CleanupRecord) error
	ListCleanupRecords(ctx context.Context, limit int) ([]domain.CleanupRecord, error)
	CleanupTotals(ctx context.Context) (files int64, bytes int64, err error)
}

// Accountant validates and records cleanup reports and keeps the running
// totals warm in memory.
type Accountant struct {
	mu         sync.Mutex
	totalFiles int64
	totalBytes int64

	store Store
	now   func() time.Time
	log   logger.Logger
}

// New builds an accountant, priming the totals from the store.
func New(ctx context.Context, store Store, now func() time.Time, log logger.Logger) (*Accountant, error) {
	if now == nil {
		now = time.Now
	}
	a := &Accountant{store: store, now: now, log: log}
	if store != nil {
		files, bytes, err := store.CleanupTotals(ctx)
		if err != nil {
			return nil, fmt.Errorf("load cleanup totals: %w", err)
		}
		a.totalFiles = files
		a.totalBytes = bytes
	}
	return a, nil
}

// Record validates and stores one cleanup report, returning the persisted
// record. Negative counts are rejected; a zero-work report is still
// recorded so operators can see the pass happened.
func (a *Accountant) Record(ctx context.Context, directory string, filesRemoved, spaceFreedBytes int64) (*domain.CleanupRecord, error) {
	if directory == "" {
		return nil, fmt.Errorf("%w: directory is required", domain.ErrInvalidOperation)
	}
	if filesRemoved < 0 || spaceFreedBytes < 0 {
		return nil, fmt.Errorf("%w: cleanup counts must be non-negative", domain.ErrInvalidOperation)
	}

	rec := &domain.CleanupRecord{
		ID:              uuid.New().String(),
		Directory:       directory,
		FilesRemoved:    filesRemoved,
		SpaceFreedBytes: spaceFreedBytes,
		RecordedAt:      a.now(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		if err := a.store.SaveCleanupRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("save cleanup record: %w", err)
		}
	}
	a.totalFiles += filesRemoved
	a.totalBytes += spaceFreedBytes

	a.log.Info("cleanup pass recorded",
		logger.String("directory", directory),
		logger.Int64("files_removed", filesRemoved),
		logger.Int64("space_freed_bytes", spaceFreedBytes))
	return rec, nil
}

// Summary returns the running totals plus up to limit recent records,
// newest first.
func (a *Accountant) Summary(ctx context.Context, limit int) (*domain.CleanupSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	a.mu.Lock()
	files, bytes := a.totalFiles, a.totalBytes
	a.mu.Unlock()

	var recent []domain.CleanupRecord
	if a.store != nil {
		var err error
		recent, err = a.store.ListCleanupRecords(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list cleanup records: %w", err)
		}
	}

	return &domain.CleanupSummary{
		TotalFilesRemoved:    files,
		TotalSpaceFreedBytes: bytes,
		RecentRecords:        recent,
	}, nil
}
