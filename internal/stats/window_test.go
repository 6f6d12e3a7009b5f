package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

type memSampleStore struct {
	samples []domain.ChannelStatSample
	nextID  int64
}

func (s *memSampleStore) RecordSample(_ context.Context, sample *domain.ChannelStatSample) error {
	s.nextID++
	sample.ID = s.nextID
	s.samples = append(s.samples, *sample)
	return nil
}

func (s *memSampleStore) RecentSamples(_ context.Context, channelID string, limit int) ([]domain.ChannelStatSample, error) {
	var matched []domain.ChannelStatSample
	for _, smp := range s.samples {
		if smp.ChannelID == channelID {
			matched = append(matched, smp)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *memSampleStore) PruneSamples(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.ChannelStatSample
	var removed int64
	for _, smp := range s.samples {
		if smp.ObservedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, smp)
	}
	s.samples = kept
	return removed, nil
}

func TestWindowServesTrailingSamples(t *testing.T) {
	store := &memSampleStore{}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	now := func() time.Time { i++; return base.Add(time.Duration(i) * time.Hour) }
	w := NewWindow(store, 3, 7*24*time.Hour, now, logger.NewNopLogger())
	ctx := context.Background()

	for _, views := range []int64{100, 200, 300, 400, 500} {
		if err := w.Observe(ctx, "chan-1", views); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}

	samples, err := w.Samples(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Samples() error = %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("window size = %d, want 3", len(samples))
	}
	if samples[0].ViewCount != 300 || samples[2].ViewCount != 500 {
		t.Errorf("window = %v, want trailing 300..500", samples)
	}
}

func TestObserveValidation(t *testing.T) {
	w := NewWindow(&memSampleStore{}, 10, 0, nil, logger.NewNopLogger())
	ctx := context.Background()

	if err := w.Observe(ctx, "", 10); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("empty channel error = %v, want ErrInvalidOperation", err)
	}
	if err := w.Observe(ctx, "chan-1", -5); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("negative views error = %v, want ErrInvalidOperation", err)
	}
}

func TestPruneDropsAgedSamples(t *testing.T) {
	store := &memSampleStore{}
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	w := NewWindow(store, 50, 7*24*time.Hour, func() time.Time { return base }, logger.NewNopLogger())
	ctx := context.Background()

	store.samples = []domain.ChannelStatSample{
		{ID: 1, ChannelID: "chan-1", ViewCount: 10, ObservedAt: base.AddDate(0, 0, -10)},
		{ID: 2, ChannelID: "chan-1", ViewCount: 20, ObservedAt: base.AddDate(0, 0, -2)},
	}

	removed, err := w.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	samples, _ := w.Samples(ctx, "chan-1")
	if len(samples) != 1 || samples[0].ViewCount != 20 {
		t.Errorf("surviving samples = %v", samples)
	}
}

func TestPruneDisabledWithZeroRetention(t *testing.T) {
	store := &memSampleStore{samples: []domain.ChannelStatSample{
		{ID: 1, ChannelID: "chan-1", ViewCount: 10, ObservedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}
	w := NewWindow(store, 50, 0, nil, logger.NewNopLogger())

	removed, err := w.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 0 || len(store.samples) != 1 {
		t.Errorf("prune with zero retention removed %d samples", removed)
	}
}
