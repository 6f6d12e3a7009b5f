package domain

import "time"

// OperationStat tracks the accumulated usage of one operation for a day.
type OperationStat struct {
	Count    int   `json:"count"`
	UnitCost int64 `json:"unit_cost"`
	Units    int64 `json:"units"`
}

// QuotaDay is one calendar day of API budget accounting. Exactly one day is
// active at a time; prior days are immutable history.
type QuotaDay struct {
	Date       string                   `json:"date"` // YYYY-MM-DD in ledger timezone
	UsedUnits  int64                    `json:"used_units"`
	Budget     int64                    `json:"budget"`
	Operations map[string]OperationStat `json:"operations"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// Remaining returns the unspent budget for the day, never negative.
func (d *QuotaDay) Remaining() int64 {
	remaining := d.Budget - d.UsedUnits
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy safe for concurrent readers.
func (d *QuotaDay) Clone() QuotaDay {
	out := *d
	out.Operations = make(map[string]OperationStat, len(d.Operations))
	for name, stat := range d.Operations {
		out.Operations[name] = stat
	}
	return out
}
