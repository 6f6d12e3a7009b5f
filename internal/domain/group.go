package domain

import "time"

// GroupStatus is the scheduling state of a channel group.
type GroupStatus string

const (
	GroupIdle    GroupStatus = "idle"
	GroupDue     GroupStatus = "due"
	GroupRunning GroupStatus = "running"
	GroupPaused  GroupStatus = "paused"
	GroupError   GroupStatus = "error"
)

// ChannelGroup is a named set of channels sharing a publish schedule.
// Membership and schedule come from configuration; run state is owned by
// the scheduler and persisted across restarts.
type ChannelGroup struct {
	ID          string         `json:"group_id"`
	Channels    []string       `json:"channels"`
	PublishDays []time.Weekday `json:"publish_days"`
	RunInterval time.Duration  `json:"run_interval"`
	Status      GroupStatus    `json:"status"`
	LastRunAt   time.Time      `json:"last_run_at"`
	NextRunAt   time.Time      `json:"next_run_at"`
	LastError   string         `json:"last_error,omitempty"`
}

// PublishesOn reports whether the group may run on the given weekday.
// An empty publish-day set means any day qualifies.
func (g *ChannelGroup) PublishesOn(day time.Weekday) bool {
	if len(g.PublishDays) == 0 {
		return true
	}
	for _, d := range g.PublishDays {
		if d == day {
			return true
		}
	}
	return false
}

// GroupState is the persisted portion of a group's run state.
type GroupState struct {
	GroupID   string    `db:"group_id"    json:"group_id"`
	Status    string    `db:"status"      json:"status"`
	LastRunAt time.Time `db:"last_run_at" json:"last_run_at"`
	NextRunAt time.Time `db:"next_run_at" json:"next_run_at"`
	LastError string    `db:"last_error"  json:"last_error,omitempty"`
	UpdatedAt time.Time `db:"updated_at"  json:"updated_at"`
}
