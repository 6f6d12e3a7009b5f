package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/shortsync/internal/domain"
)

// Repository implements the persistence interfaces used by the quota
// ledger, the group scheduler, the stats window, and the cleanup
// accountant, all over a single sqlx connection pool.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ====================
// Quota days
// ====================

// quotaDayRow is the storage shape of a quota day; the per-operation
// breakdown lives in a JSONB column.
type quotaDayRow struct {
	Date       string    `db:"date"`
	UsedUnits  int64     `db:"used_units"`
	Budget     int64     `db:"budget"`
	Operations []byte    `db:"operations"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// LoadQuotaDay returns the stored accounting for one calendar day, or
// domain.ErrNotFound when the day has no record yet.
func (r *Repository) LoadQuotaDay(ctx context.Context, date string) (*domain.QuotaDay, error) {
	var row quotaDayRow
	query := `
		SELECT date, used_units, budget, operations, updated_at
		FROM quota_days
		WHERE date = $1
	`
	if err := r.db.GetContext(ctx, &row, query, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: quota day %s", domain.ErrNotFound, date)
		}
		return nil, fmt.Errorf("load quota day: %w", err)
	}

	day := &domain.QuotaDay{
		Date:      row.Date,
		UsedUnits: row.UsedUnits,
		Budget:    row.Budget,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Operations) > 0 {
		if err := json.Unmarshal(row.Operations, &day.Operations); err != nil {
			return nil, fmt.Errorf("decode quota operations: %w", err)
		}
	}
	if day.Operations == nil {
		day.Operations = map[string]domain.OperationStat{}
	}
	return day, nil
}

// SaveQuotaDay upserts the accounting for one calendar day.
func (r *Repository) SaveQuotaDay(ctx context.Context, day *domain.QuotaDay) error {
	operations, err := json.Marshal(day.Operations)
	if err != nil {
		return fmt.Errorf("encode quota operations: %w", err)
	}

	query := `
		INSERT INTO quota_days (date, used_units, budget, operations, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (date) DO UPDATE
		SET used_units = EXCLUDED.used_units,
		    budget = EXCLUDED.budget,
		    operations = EXCLUDED.operations,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		day.Date, day.UsedUnits, day.Budget, operations, day.UpdatedAt); err != nil {
		return fmt.Errorf("save quota day: %w", err)
	}
	return nil
}

// ====================
// Group state
// ====================

// LoadGroupStates returns the persisted run state of every known group.
func (r *Repository) LoadGroupStates(ctx context.Context) ([]domain.GroupState, error) {
	states := []domain.GroupState{}
	query := `
		SELECT group_id, status, last_run_at, next_run_at, last_error, updated_at
		FROM group_state
		ORDER BY group_id ASC
	`
	if err := r.db.SelectContext(ctx, &states, query); err != nil {
		return nil, fmt.Errorf("load group states: %w", err)
	}
	return states, nil
}

// SaveGroupState upserts one group's run state.
func (r *Repository) SaveGroupState(ctx context.Context, state *domain.GroupState) error {
	query := `
		INSERT INTO group_state (group_id, status, last_run_at, next_run_at, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id) DO UPDATE
		SET status = EXCLUDED.status,
		    last_run_at = EXCLUDED.last_run_at,
		    next_run_at = EXCLUDED.next_run_at,
		    last_error = EXCLUDED.last_error,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		state.GroupID, state.Status, state.LastRunAt, state.NextRunAt,
		state.LastError, state.UpdatedAt); err != nil {
		return fmt.Errorf("save group state: %w", err)
	}
	return nil
}

// ====================
// Channel stat samples
// ====================

// RecordSample appends one view-count observation for a channel.
func (r *Repository) RecordSample(ctx context.Context, sample *domain.ChannelStatSample) error {
	query := `
		INSERT INTO channel_stat_samples (channel_id, view_count, observed_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := r.db.QueryRowxContext(ctx, query,
		sample.ChannelID, sample.ViewCount, sample.ObservedAt).Scan(&sample.ID); err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

// RecentSamples returns the newest limit samples for a channel, oldest
// first so callers see the window in observation order.
func (r *Repository) RecentSamples(ctx context.Context, channelID string, limit int) ([]domain.ChannelStatSample, error) {
	samples := []domain.ChannelStatSample{}
	query := `
		SELECT id, channel_id, view_count, observed_at
		FROM (
			SELECT id, channel_id, view_count, observed_at
			FROM channel_stat_samples
			WHERE channel_id = $1
			ORDER BY observed_at DESC, id DESC
			LIMIT $2
		) window
		ORDER BY observed_at ASC, id ASC
	`
	if err := r.db.SelectContext(ctx, &samples, query, channelID, limit); err != nil {
		return nil, fmt.Errorf("recent samples: %w", err)
	}
	return samples, nil
}

// PruneSamples deletes samples observed before the cutoff, returning how
// many rows were removed.
func (r *Repository) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_stat_samples WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows: %w", err)
	}
	return removed, nil
}

// ====================
// Cleanup records
// ====================

// SaveCleanupRecord appends one cleanup report.
func (r *Repository) SaveCleanupRecord(ctx context.Context, rec *domain.CleanupRecord) error {
	query := `
		INSERT INTO cleanup_records (id, directory, files_removed, space_freed_bytes, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Directory, rec.FilesRemoved, rec.SpaceFreedBytes, rec.RecordedAt); err != nil {
		return fmt.Errorf("save cleanup record: %w", err)
	}
	return nil
}

// ListCleanupRecords returns the newest limit cleanup reports.
func (r *Repository) ListCleanupRecords(ctx context.Context, limit int) ([]domain.CleanupRecord, error) {
	records := []domain.CleanupRecord{}
	query := `
		SELECT id, directory, files_removed, space_freed_bytes, recorded_at
		FROM cleanup_records
		ORDER BY recorded_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("list cleanup records: %w", err)
	}
	return records, nil
}

// CleanupTotals returns the lifetime cleanup totals.
func (r *Repository) CleanupTotals(ctx context.Context) (int64, int64, error) {
	var totals struct {
		Files int64 `db:"files"`
		Bytes int64 `db:"bytes"`
	}
	query := `
		SELECT COALESCE(SUM(files_removed), 0) AS files,
		       COALESCE(SUM(space_freed_bytes), 0) AS bytes
		FROM cleanup_records
	`
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return 0, 0, fmt.Errorf("cleanup totals: %w", err)
	}
	return totals.Files, totals.Bytes, nil
}
