// Package quota tracks per-day API operation costs against a fixed daily
// budget. The ledger is the single admission gate for every externally
// billed API call: callers must debit before issuing the call and must not
// issue it if the debit is rejected.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
	"github.com/jonesrussell/shortsync/internal/metrics"
)

const dateLayout = "2006-01-02"

// Store persists quota day records. Reload must reconstruct identical
// used_units given the same inputs.
type Store interface {
	LoadQuotaDay(ctx context.Context, date string) (*domain.QuotaDay, error)
	SaveQuotaDay(ctx context.Context, day *domain.QuotaDay) error
}

// Config holds ledger settings.
type Config struct {
	DailyBudget  int64
	Location     *time.Location // day-rollover timezone
	LowWaterMark int64          // warn below this many remaining units
	Now          func() time.Time
}

// Ledger is the daily budget accountant. All debits are serialized through
// a single mutex so a debit is one atomic decision point.
type Ledger struct {
	budget   int64
	loc      *time.Location
	lowWater int64
	now      func() time.Time

	store   Store
	metrics *metrics.Metrics
	log     logger.Logger

	mu       sync.Mutex
	day      *domain.QuotaDay
	rejected int64
}

// NewLedger creates a quota ledger. The store may be nil for a purely
// in-memory ledger (tests).
func NewLedger(cfg Config, store Store, m *metrics.Metrics, log logger.Logger) *Ledger {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		budget:   cfg.DailyBudget,
		loc:      cfg.Location,
		lowWater: cfg.LowWaterMark,
		now:      cfg.Now,
		store:    store,
		metrics:  m,
		log:      log,
	}
}

// TryDebit atomically reserves unitCost*count units from today's budget.
// It returns the remaining units on success. A debit that would exceed the
// budget is rejected with domain.ErrQuotaExceeded and leaves the ledger
// unchanged. Negative cost or count, or an empty operation name, fail with
// domain.ErrInvalidOperation.
func (l *Ledger) TryDebit(ctx context.Context, operation string, unitCost int64, count int) (int64, error) {
	if operation == "" {
		return 0, fmt.Errorf("%w: empty operation name", domain.ErrInvalidOperation)
	}
	if unitCost < 0 || count < 0 {
		return 0, fmt.Errorf("%w: %s cost=%d count=%d", domain.ErrInvalidOperation, operation, unitCost, count)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.activeDay(ctx)

	units := unitCost * int64(count)
	projected := day.UsedUnits + units
	if projected > l.budget {
		l.rejected++
		l.metrics.QuotaRejected.Inc()
		l.log.Warn("quota debit rejected",
			logger.String("operation", operation),
			logger.Int64("requested_units", units),
			logger.Int64("used_units", day.UsedUnits),
			logger.Int64("budget", l.budget))
		return 0, fmt.Errorf("%w: %s needs %d units, %d available",
			domain.ErrQuotaExceeded, operation, units, l.budget-day.UsedUnits)
	}

	stat := day.Operations[operation]
	stat.Count += count
	stat.UnitCost = unitCost
	stat.Units += units
	day.Operations[operation] = stat
	day.UsedUnits = projected
	day.UpdatedAt = l.now().In(l.loc)

	l.metrics.QuotaDebits.WithLabelValues(operation).Add(float64(units))
	l.metrics.QuotaUsedUnits.Set(float64(day.UsedUnits))

	l.persist(ctx, day)

	remaining := l.budget - projected
	if remaining < l.lowWater {
		l.log.Warn("quota running low",
			logger.Int64("remaining_units", remaining),
			logger.Int64("budget", l.budget))
	}
	l.log.Debug("quota debit committed",
		logger.String("operation", operation),
		logger.Int("count", count),
		logger.Int64("units", units),
		logger.Int64("remaining_units", remaining))

	return remaining, nil
}

// Today returns a snapshot of the active day's usage. Reading never
// triggers a rollover commit; an untouched new day reports zero usage.
func (l *Ledger) Today() domain.QuotaDay {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.now().In(l.loc).Format(dateLayout)
	if l.day == nil || l.day.Date != key {
		return domain.QuotaDay{
			Date:       key,
			Budget:     l.budget,
			Operations: map[string]domain.OperationStat{},
		}
	}
	return l.day.Clone()
}

// RejectedTotal returns how many debits have been rejected since startup.
func (l *Ledger) RejectedTotal() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}

// activeDay returns today's record, rolling the day over lazily. The first
// debit of a new calendar day starts a fresh record; the previous day's
// record is left in the store as immutable history. A record persisted
// before a restart is reloaded so used_units survives the process.
func (l *Ledger) activeDay(ctx context.Context) *domain.QuotaDay {
	key := l.now().In(l.loc).Format(dateLayout)
	if l.day != nil && l.day.Date == key {
		return l.day
	}

	if l.day != nil {
		l.log.Info("quota day rollover",
			logger.String("previous_date", l.day.Date),
			logger.String("date", key),
			logger.Int64("previous_used_units", l.day.UsedUnits))
	}

	if l.store != nil {
		stored, err := l.store.LoadQuotaDay(ctx, key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			l.log.Error("failed to load quota day, starting fresh", logger.Error(err))
		}
		if stored != nil {
			if stored.Operations == nil {
				stored.Operations = map[string]domain.OperationStat{}
			}
			stored.Budget = l.budget
			l.day = stored
			l.metrics.QuotaUsedUnits.Set(float64(stored.UsedUnits))
			return l.day
		}
	}

	l.day = &domain.QuotaDay{
		Date:       key,
		Budget:     l.budget,
		Operations: map[string]domain.OperationStat{},
		UpdatedAt:  l.now().In(l.loc),
	}
	l.metrics.QuotaUsedUnits.Set(0)
	return l.day
}

// persist writes the active day through to the store. A write failure is
// logged and does not undo the committed debit; the in-memory ledger stays
// authoritative until the next successful save.
func (l *Ledger) persist(ctx context.Context, day *domain.QuotaDay) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveQuotaDay(ctx, day); err != nil {
		l.log.Error("failed to persist quota day",
			logger.String("date", day.Date),
			logger.Error(err))
	}
}
