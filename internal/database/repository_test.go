package database_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/shortsync/internal/database"
	"github.com/jonesrussell/shortsync/internal/domain"
)

func newMockRepo(t *testing.T) (*database.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return database.NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRepository_LoadQuotaDay(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	operations, _ := json.Marshal(map[string]domain.OperationStat{
		"upload_video": {Count: 2, UnitCost: 1600, Units: 3200},
	})
	updatedAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT date, used_units, budget, operations, updated_at").
		WithArgs("2025-06-02").
		WillReturnRows(sqlmock.NewRows(
			[]string{"date", "used_units", "budget", "operations", "updated_at"}).
			AddRow("2025-06-02", int64(3200), int64(10000), operations, updatedAt))

	day, err := repo.LoadQuotaDay(ctx, "2025-06-02")
	if err != nil {
		t.Fatalf("LoadQuotaDay() error = %v", err)
	}
	if day.UsedUnits != 3200 {
		t.Errorf("UsedUnits = %d, want 3200", day.UsedUnits)
	}
	if got := day.Operations["upload_video"]; got.Count != 2 || got.Units != 3200 {
		t.Errorf("upload_video stat = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_LoadQuotaDayNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT date, used_units, budget, operations, updated_at").
		WithArgs("2025-06-03").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LoadQuotaDay(context.Background(), "2025-06-03")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LoadQuotaDay() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_SaveQuotaDay(t *testing.T) {
	repo, mock := newMockRepo(t)

	day := &domain.QuotaDay{
		Date:      "2025-06-02",
		UsedUnits: 1600,
		Budget:    10000,
		Operations: map[string]domain.OperationStat{
			"upload_video": {Count: 1, UnitCost: 1600, Units: 1600},
		},
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO quota_days").
		WithArgs(day.Date, day.UsedUnits, day.Budget, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveQuotaDay(context.Background(), day); err != nil {
		t.Fatalf("SaveQuotaDay() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_GroupStateRoundTrip(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	state := &domain.GroupState{
		GroupID:   "group-a",
		Status:    "idle",
		LastRunAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		NextRunAt: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO group_state").
		WithArgs(state.GroupID, state.Status, state.LastRunAt, state.NextRunAt,
			state.LastError, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveGroupState(ctx, state); err != nil {
		t.Fatalf("SaveGroupState() error = %v", err)
	}

	mock.ExpectQuery("SELECT group_id, status, last_run_at, next_run_at, last_error, updated_at").
		WillReturnRows(sqlmock.NewRows(
			[]string{"group_id", "status", "last_run_at", "next_run_at", "last_error", "updated_at"}).
			AddRow(state.GroupID, state.Status, state.LastRunAt, state.NextRunAt, "", state.UpdatedAt))

	states, err := repo.LoadGroupStates(ctx)
	if err != nil {
		t.Fatalf("LoadGroupStates() error = %v", err)
	}
	if len(states) != 1 || states[0].GroupID != "group-a" {
		t.Fatalf("LoadGroupStates() = %+v", states)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_RecordSample(t *testing.T) {
	repo, mock := newMockRepo(t)

	sample := &domain.ChannelStatSample{
		ChannelID:  "chan-1",
		ViewCount:  42000,
		ObservedAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery("INSERT INTO channel_stat_samples").
		WithArgs(sample.ChannelID, sample.ViewCount, sample.ObservedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	if err := repo.RecordSample(context.Background(), sample); err != nil {
		t.Fatalf("RecordSample() error = %v", err)
	}
	if sample.ID != 7 {
		t.Errorf("sample.ID = %d, want 7", sample.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_RecentSamplesOrderedOldestFirst(t *testing.T) {
	repo, mock := newMockRepo(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, channel_id, view_count, observed_at").
		WithArgs("chan-1", 3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "channel_id", "view_count", "observed_at"}).
			AddRow(int64(1), "chan-1", int64(10000), base).
			AddRow(int64(2), "chan-1", int64(20000), base.Add(time.Hour)).
			AddRow(int64(3), "chan-1", int64(30000), base.Add(2*time.Hour)))

	samples, err := repo.RecentSamples(context.Background(), "chan-1", 3)
	if err != nil {
		t.Fatalf("RecentSamples() error = %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].ViewCount != 10000 || samples[2].ViewCount != 30000 {
		t.Errorf("samples not oldest first: %+v", samples)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_PruneSamples(t *testing.T) {
	repo, mock := newMockRepo(t)

	cutoff := time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM channel_stat_samples").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := repo.PruneSamples(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneSamples() error = %v", err)
	}
	if removed != 12 {
		t.Errorf("removed = %d, want 12", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_CleanupRecords(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	rec := &domain.CleanupRecord{
		ID:              "rec-1",
		Directory:       "/downloads/chan-1",
		FilesRemoved:    4,
		SpaceFreedBytes: 2048,
		RecordedAt:      time.Now(),
	}

	mock.ExpectExec("INSERT INTO cleanup_records").
		WithArgs(rec.ID, rec.Directory, rec.FilesRemoved, rec.SpaceFreedBytes, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveCleanupRecord(ctx, rec); err != nil {
		t.Fatalf("SaveCleanupRecord() error = %v", err)
	}

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"files", "bytes"}).
			AddRow(int64(4), int64(2048)))

	files, bytes, err := repo.CleanupTotals(ctx)
	if err != nil {
		t.Fatalf("CleanupTotals() error = %v", err)
	}
	if files != 4 || bytes != 2048 {
		t.Errorf("totals = (%d, %d), want (4, 2048)", files, bytes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_CleanupTotalsQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COALESCE").WillReturnError(sql.ErrConnDone)

	if _, _, err := repo.CleanupTotals(context.Background()); err == nil {
		t.Fatal("CleanupTotals() succeeded, want error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
