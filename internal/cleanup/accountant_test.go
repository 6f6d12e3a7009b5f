package cleanup

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

type memCleanupStore struct {
	mu      sync.Mutex
	records []domain.CleanupRecord
	saveErr error
}

func (s *memCleanupStore) SaveCleanupRecord(_ context.Context, rec *domain.CleanupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memCleanupStore) ListCleanupRecords(_ context.Context, limit int) ([]domain.CleanupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.CleanupRecord(nil), s.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memCleanupStore) CleanupTotals(_ context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var files, bytes int64
	for _, r := range s.records {
		files += r.FilesRemoved
		bytes += r.SpaceFreedBytes
	}
	return files, bytes, nil
}

func newTestAccountant(t *testing.T, store Store, base time.Time) *Accountant {
	t.Helper()
	var tick time.Duration
	now := func() time.Time {
		tick += time.Second
		return base.Add(tick)
	}
	a, err := New(context.Background(), store, now, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestRecordAccumulatesTotals(t *testing.T) {
	store := &memCleanupStore{}
	a := newTestAccountant(t, store, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := a.Record(ctx, "/downloads/chan-1", 12, 400_000_000); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := a.Record(ctx, "/downloads/chan-2", 3, 90_000_000); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	sum, err := a.Summary(ctx, 10)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalFilesRemoved != 15 {
		t.Errorf("TotalFilesRemoved = %d, want 15", sum.TotalFilesRemoved)
	}
	if sum.TotalSpaceFreedBytes != 490_000_000 {
		t.Errorf("TotalSpaceFreedBytes = %d, want 490000000", sum.TotalSpaceFreedBytes)
	}
	if len(sum.RecentRecords) != 2 {
		t.Fatalf("RecentRecords = %d, want 2", len(sum.RecentRecords))
	}
	// Newest first.
	if sum.RecentRecords[0].Directory != "/downloads/chan-2" {
		t.Errorf("newest record directory = %s", sum.RecentRecords[0].Directory)
	}
}

func TestRecordValidation(t *testing.T) {
	a := newTestAccountant(t, &memCleanupStore{}, time.Now())
	ctx := context.Background()

	tests := []struct {
		name      string
		directory string
		files     int64
		bytes     int64
	}{
		{"empty directory", "", 1, 1},
		{"negative files", "/d", -1, 0},
		{"negative bytes", "/d", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Record(ctx, tt.directory, tt.files, tt.bytes)
			if !errors.Is(err, domain.ErrInvalidOperation) {
				t.Fatalf("Record() error = %v, want ErrInvalidOperation", err)
			}
		})
	}
}

func TestRecordZeroWorkIsRecorded(t *testing.T) {
	store := &memCleanupStore{}
	a := newTestAccountant(t, store, time.Now())

	rec, err := a.Record(context.Background(), "/downloads/empty", 0, 0)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("record has no ID")
	}
	if len(store.records) != 1 {
		t.Fatalf("store has %d records, want 1", len(store.records))
	}
}

func TestRecordStoreFailureDoesNotCountTotals(t *testing.T) {
	store := &memCleanupStore{saveErr: errors.New("db down")}
	a := newTestAccountant(t, store, time.Now())
	ctx := context.Background()

	if _, err := a.Record(ctx, "/downloads/chan-1", 5, 100); err == nil {
		t.Fatal("Record() with failing store succeeded, want error")
	}

	store.saveErr = nil
	sum, err := a.Summary(ctx, 10)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalFilesRemoved != 0 || sum.TotalSpaceFreedBytes != 0 {
		t.Fatalf("failed save counted into totals: %+v", sum)
	}
}

func TestNewPrimesTotalsFromStore(t *testing.T) {
	store := &memCleanupStore{records: []domain.CleanupRecord{
		{ID: "1", Directory: "/d", FilesRemoved: 7, SpaceFreedBytes: 1024, RecordedAt: time.Now()},
	}}
	a := newTestAccountant(t, store, time.Now())

	sum, err := a.Summary(context.Background(), 5)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalFilesRemoved != 7 || sum.TotalSpaceFreedBytes != 1024 {
		t.Fatalf("primed totals = %+v", sum)
	}
}

func TestSummaryLimit(t *testing.T) {
	store := &memCleanupStore{}
	a := newTestAccountant(t, store, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := a.Record(ctx, "/downloads/chan", 1, 10); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	sum, err := a.Summary(ctx, 2)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(sum.RecentRecords) != 2 {
		t.Fatalf("RecentRecords = %d, want 2", len(sum.RecentRecords))
	}
	if sum.TotalFilesRemoved != 5 {
		t.Fatalf("TotalFilesRemoved = %d, want 5", sum.TotalFilesRemoved)
	}
}
