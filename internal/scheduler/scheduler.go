// Package scheduler owns channel-group definitions and decides when each
// group becomes runnable. Group claim and release are single atomic
// operations so a manual trigger can never race the periodic tick into a
// double run.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

// Store persists group run state across restarts.
type Store interface {
	LoadGroupStates(ctx context.Context) ([]domain.GroupState, error)
	SaveGroupState(ctx context.Context, state *domain.GroupState) error
}

// group is one channel group's definition plus mutable run state.
type group struct {
	id          string
	channels    []string
	publishDays []time.Weekday
	runInterval time.Duration

	status    domain.GroupStatus
	lastRunAt time.Time
	nextRunAt time.Time
	lastError string

	// Operator actions arriving while a run is in flight are deferred
	// until the claim is released; the claim stays exclusive throughout.
	pendingRestart bool
	pendingPause   bool
}

// Scheduler is the group state machine. All transitions go through the
// scheduler's mutex.
type Scheduler struct {
	mu     sync.Mutex
	groups map[string]*group
	order  []string

	now   func() time.Time
	store Store
	log   logger.Logger
}

// Definition describes one group to schedule.
type Definition struct {
	ID          string
	Channels    []string
	PublishDays []time.Weekday
	RunInterval time.Duration
}

// New creates a scheduler for the given group definitions, restoring
// persisted run state when a store is provided. A group persisted as
// running is recovered to idle: a crash mid-run must not wedge the group.
func New(ctx context.Context, defs []Definition, store Store, now func() time.Time, log logger.Logger) (*Scheduler, error) {
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		groups: make(map[string]*group, len(defs)),
		now:    now,
		store:  store,
		log:    log,
	}

	for _, def := range defs {
		if _, exists := s.groups[def.ID]; exists {
			return nil, fmt.Errorf("duplicate group id %q", def.ID)
		}
		s.groups[def.ID] = &group{
			id:          def.ID,
			channels:    append([]string(nil), def.Channels...),
			publishDays: append([]time.Weekday(nil), def.PublishDays...),
			runInterval: def.RunInterval,
			status:      domain.GroupIdle,
		}
		s.order = append(s.order, def.ID)
	}
	sort.Strings(s.order)

	if store != nil {
		states, err := store.LoadGroupStates(ctx)
		if err != nil {
			return nil, fmt.Errorf("load group states: %w", err)
		}
		for i := range states {
			s.restore(&states[i])
		}
	}

	for _, id := range s.order {
		g := s.groups[id]
		if g.nextRunAt.IsZero() {
			g.nextRunAt = NextRun(g.lastRunAt, g.runInterval, g.publishDays, now())
		}
	}

	return s, nil
}

func (s *Scheduler) restore(state *domain.GroupState) {
	g, ok := s.groups[state.GroupID]
	if !ok {
		s.log.Warn("persisted state for unknown group, ignoring",
			logger.String("group_id", state.GroupID))
		return
	}

	g.lastRunAt = state.LastRunAt
	g.nextRunAt = state.NextRunAt
	g.lastError = state.LastError

	switch domain.GroupStatus(state.Status) {
	case domain.GroupPaused:
		g.status = domain.GroupPaused
	case domain.GroupError:
		g.status = domain.GroupError
	case domain.GroupRunning:
		// Stale claim from a previous process.
		s.log.Warn("recovering group stuck in running state",
			logger.String("group_id", state.GroupID))
		g.status = domain.GroupIdle
	default:
		g.status = domain.GroupIdle
	}
}

// Due marks and returns the groups whose run conditions hold now, in
// ascending group-ID order so quota allocation stays reproducible.
func (s *Scheduler) Due(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []string
	for _, id := range s.order {
		g := s.groups[id]
		switch g.status {
		case domain.GroupIdle, domain.GroupError:
			if !now.Before(g.nextRunAt) && g.publishesOn(now.Weekday()) {
				g.status = domain.GroupDue
				s.persistLocked(ctx, g)
				due = append(due, id)
			}
		case domain.GroupDue:
			due = append(due, id)
		}
	}
	return due
}

// Claim transitions a DUE group to RUNNING. Claiming is exclusive: a group
// already running yields domain.ErrGroupBusy.
func (s *Scheduler) Claim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	switch g.status {
	case domain.GroupRunning:
		return fmt.Errorf("%w: %s", domain.ErrGroupBusy, id)
	case domain.GroupPaused:
		return fmt.Errorf("%w: %s", domain.ErrGroupPaused, id)
	case domain.GroupDue:
		g.status = domain.GroupRunning
		s.persistLocked(ctx, g)
		return nil
	default:
		return fmt.Errorf("group %s is %s, not due", id, g.status)
	}
}

// Release completes a claimed run. last_run_at is set to the completion
// time and next_run_at recomputed; a failed run parks the group in ERROR
// but still schedules the retry so the group never wedges.
func (s *Scheduler) Release(ctx context.Context, id string, completedAt time.Time, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok || g.status != domain.GroupRunning {
		return
	}

	g.lastRunAt = completedAt
	g.nextRunAt = NextRun(g.lastRunAt, g.runInterval, g.publishDays, s.now())
	if runErr != nil {
		g.status = domain.GroupError
		g.lastError = runErr.Error()
		s.log.Error("group run failed",
			logger.String("group_id", id),
			logger.Time("next_run_at", g.nextRunAt),
			logger.Error(runErr))
	} else {
		g.status = domain.GroupIdle
		g.lastError = ""
		s.log.Info("group run completed",
			logger.String("group_id", id),
			logger.Time("next_run_at", g.nextRunAt))
	}
	s.applyPendingLocked(g)
	s.persistLocked(ctx, g)
}

// applyPendingLocked applies an operator restart or pause that arrived
// while the run held the claim. Restart wins over pause.
func (s *Scheduler) applyPendingLocked(g *group) {
	switch {
	case g.pendingRestart:
		g.pendingRestart = false
		g.pendingPause = false
		g.status = domain.GroupIdle
		g.lastError = ""
		g.nextRunAt = s.now()
		s.log.Info("deferred restart applied", logger.String("group_id", g.id))
	case g.pendingPause:
		g.pendingPause = false
		g.status = domain.GroupPaused
		s.log.Info("deferred pause applied", logger.String("group_id", g.id))
	}
}

// ReleaseCancelled releases a claim without recording a completed run.
// The schedule is untouched so the group re-fires on its existing window.
func (s *Scheduler) ReleaseCancelled(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok || g.status != domain.GroupRunning {
		return
	}
	g.status = domain.GroupIdle
	s.applyPendingLocked(g)
	s.persistLocked(ctx, g)
	s.log.Info("group claim released without completion", logger.String("group_id", id))
}

// Pause suspends a group. While a run holds the claim the pause is
// deferred and takes effect when the claim is released, so the claim
// stays exclusive.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	if g.status == domain.GroupRunning {
		g.pendingPause = true
		s.log.Info("group pause deferred until in-flight run releases",
			logger.String("group_id", id))
		return nil
	}
	g.status = domain.GroupPaused
	s.persistLocked(ctx, g)
	s.log.Info("group paused", logger.String("group_id", id))
	return nil
}

// Resume returns a paused group to idle. A pause still pending against an
// in-flight run is simply cancelled.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	if g.pendingPause {
		g.pendingPause = false
		s.log.Info("deferred pause cancelled", logger.String("group_id", id))
		return nil
	}
	if g.status != domain.GroupPaused {
		return nil
	}
	g.status = domain.GroupIdle
	s.persistLocked(ctx, g)
	s.log.Info("group resumed", logger.String("group_id", id))
	return nil
}

// Restart forces a group back to idle with an immediate re-evaluation,
// clearing any error. While a run holds the claim the restart is deferred
// until the claim is released; the in-flight run is never raced.
func (s *Scheduler) Restart(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	if g.status == domain.GroupRunning {
		g.pendingRestart = true
		s.log.Info("group restart deferred until in-flight run releases",
			logger.String("group_id", id))
		return nil
	}
	g.status = domain.GroupIdle
	g.lastError = ""
	g.pendingPause = false
	g.nextRunAt = s.now()
	s.persistLocked(ctx, g)
	s.log.Info("group restarted", logger.String("group_id", id))
	return nil
}

// RunNow bypasses the next_run_at gate: the group is marked DUE and the
// next cycle claims it. Fails with domain.ErrGroupBusy while a run is in
// flight and domain.ErrGroupPaused for suspended groups.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	switch g.status {
	case domain.GroupRunning:
		return fmt.Errorf("%w: %s", domain.ErrGroupBusy, id)
	case domain.GroupPaused:
		return fmt.Errorf("%w: %s", domain.ErrGroupPaused, id)
	}
	g.status = domain.GroupDue
	g.lastError = ""
	s.persistLocked(ctx, g)
	s.log.Info("group manually triggered", logger.String("group_id", id))
	return nil
}

// Channels returns the member channel IDs of a group.
func (s *Scheduler) Channels(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, id)
	}
	return append([]string(nil), g.channels...), nil
}

// Groups returns a snapshot of all groups in ascending ID order.
func (s *Scheduler) Groups() []domain.ChannelGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ChannelGroup, 0, len(s.order))
	for _, id := range s.order {
		g := s.groups[id]
		out = append(out, domain.ChannelGroup{
			ID:          g.id,
			Channels:    append([]string(nil), g.channels...),
			PublishDays: append([]time.Weekday(nil), g.publishDays...),
			RunInterval: g.runInterval,
			Status:      g.status,
			LastRunAt:   g.lastRunAt,
			NextRunAt:   g.nextRunAt,
			LastError:   g.lastError,
		})
	}
	return out
}

func (g *group) publishesOn(day time.Weekday) bool {
	if len(g.publishDays) == 0 {
		return true
	}
	for _, d := range g.publishDays {
		if d == day {
			return true
		}
	}
	return false
}

func (s *Scheduler) persistLocked(ctx context.Context, g *group) {
	if s.store == nil {
		return
	}
	state := &domain.GroupState{
		GroupID:   g.id,
		Status:    string(g.status),
		LastRunAt: g.lastRunAt,
		NextRunAt: g.nextRunAt,
		LastError: g.lastError,
		UpdatedAt: s.now(),
	}
	if err := s.store.SaveGroupState(ctx, state); err != nil {
		s.log.Error("failed to persist group state",
			logger.String("group_id", g.id),
			logger.Error(err))
	}
}

// NextRun computes the next eligible run time: the interval after the last
// run (never in the past), rounded forward day by day to the nearest
// weekday in publishDays. An empty publish-day set accepts any day.
func NextRun(lastRunAt time.Time, interval time.Duration, publishDays []time.Weekday, now time.Time) time.Time {
	candidate := lastRunAt.Add(interval)
	if candidate.Before(now) {
		candidate = now
	}
	if len(publishDays) == 0 {
		return candidate
	}

	allowed := make(map[time.Weekday]bool, len(publishDays))
	for _, d := range publishDays {
		allowed[d] = true
	}
	for i := 0; i < 7; i++ {
		if allowed[candidate.Weekday()] {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
