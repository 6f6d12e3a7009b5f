// Package orchestrator drives the run cycle: it claims due groups, walks
// their channels, evaluates candidates against dynamic thresholds, and
// spends the quota ledger. Ingestion and publishing are collaborators
// behind interfaces; this package owns only the decision loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
	"github.com/jonesrussell/shortsync/internal/metrics"
	"github.com/jonesrussell/shortsync/internal/quota"
	"github.com/jonesrussell/shortsync/internal/scheduler"
	"github.com/jonesrussell/shortsync/internal/stats"
	"github.com/jonesrussell/shortsync/internal/threshold"
)

// CandidateFetcher lists fresh candidates for a channel. The view counts on
// the returned items double as stat observations for the channel window.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, channelID string, limit int) ([]domain.CandidateItem, error)
}

// Publisher republishes one eligible candidate.
type Publisher interface {
	Publish(ctx context.Context, candidate domain.CandidateItem) error
}

// Deduper remembers which candidates were already republished.
type Deduper interface {
	HasPublished(ctx context.Context, candidateID string) bool
	MarkPublished(ctx context.Context, candidateID string) error
}

// ExistenceChecker asks the destination whether a candidate is already
// live there, catching republishes the local dedup cache has forgotten.
type ExistenceChecker interface {
	VideoExists(ctx context.Context, candidateID string) (bool, error)
}

// TokenSource reports the auth state of the publishing credentials.
type TokenSource interface {
	Status(ctx context.Context) (domain.TokenStatus, error)
}

// pendingCandidate carries a candidate through quota-deferred retries. The
// flags record which per-candidate charges already committed so a retry
// never debits or counts the same work twice.
type pendingCandidate struct {
	item             domain.CandidateItem
	counted          bool
	existenceChecked bool
	metadataDebited  bool
}

// Orchestrator coordinates one scheduling core: scheduler, ledger,
// threshold engine, sample window, and the external collaborators.
type Orchestrator struct {
	sched     *scheduler.Scheduler
	ledger    *quota.Ledger
	engine    *threshold.Engine
	window    *stats.Window
	dedup     Deduper
	fetcher   CandidateFetcher
	publisher Publisher
	checker   ExistenceChecker
	tokens    TokenSource

	costs   map[string]int64
	cfg     config.SchedulerConfig
	metrics *metrics.Metrics
	log     logger.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu       sync.Mutex
	totals   domain.RunTotals
	deferred []pendingCandidate
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Ledger    *quota.Ledger
	Engine    *threshold.Engine
	Window    *stats.Window
	Dedup     Deduper
	Fetcher   CandidateFetcher
	Publisher Publisher
	Checker   ExistenceChecker
	Tokens    TokenSource

	Costs   map[string]int64
	Config  config.SchedulerConfig
	Metrics *metrics.Metrics
	Logger  logger.Logger
	Now     func() time.Time
}

// New wires an orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{
		sched:     deps.Scheduler,
		ledger:    deps.Ledger,
		engine:    deps.Engine,
		window:    deps.Window,
		dedup:     deps.Dedup,
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		checker:   deps.Checker,
		tokens:    deps.Tokens,
		costs:     deps.Costs,
		cfg:       deps.Config,
		metrics:   m,
		log:       deps.Logger,
		tracer:    otel.Tracer("shortsync/orchestrator"),
		now:       now,
	}
}

// Cycle executes one pass: deferred candidates first, then every group the
// scheduler reports due, in ascending group-ID order. Quota exhaustion ends
// the pass cleanly; remaining work is deferred, never lost.
func (o *Orchestrator) Cycle(ctx context.Context) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.cycle")
	defer span.End()

	if err := o.drainDeferred(ctx); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			o.log.Warn("quota exhausted while draining deferred candidates")
			return
		}
		o.log.Error("deferred drain failed", logger.Error(err))
	}

	for _, groupID := range o.sched.Due(ctx) {
		if ctx.Err() != nil {
			return
		}
		if err := o.sched.Claim(ctx, groupID); err != nil {
			if errors.Is(err, domain.ErrGroupBusy) || errors.Is(err, domain.ErrGroupPaused) {
				continue
			}
			o.log.Error("failed to claim group",
				logger.String("group_id", groupID), logger.Error(err))
			continue
		}

		runErr := o.runGroup(ctx, groupID)
		switch {
		case ctx.Err() != nil:
			o.sched.ReleaseCancelled(ctx, groupID)
			return
		case runErr != nil && errors.Is(runErr, domain.ErrQuotaExceeded):
			// Not a group failure: the remainder is deferred and the
			// group's window advances normally.
			o.metrics.GroupRuns.WithLabelValues("deferred").Inc()
			o.sched.Release(ctx, groupID, o.now(), nil)
			return
		case runErr != nil:
			o.metrics.GroupRuns.WithLabelValues("failed").Inc()
			o.sched.Release(ctx, groupID, o.now(), runErr)
		default:
			o.metrics.GroupRuns.WithLabelValues("completed").Inc()
			o.sched.Release(ctx, groupID, o.now(), nil)
		}
	}
}

// runGroup processes every channel in the group. Fetch failures count
// against the retry budget; hitting the budget fails the run.
func (o *Orchestrator) runGroup(ctx context.Context, groupID string) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.group",
		trace.WithAttributes(attribute.String("group.id", groupID)))
	defer span.End()

	channels, err := o.sched.Channels(groupID)
	if err != nil {
		return err
	}

	o.log.Info("group run started",
		logger.String("group_id", groupID),
		logger.Int("channels", len(channels)))

	consecutiveFailures := 0
	for _, channelID := range channels {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := o.runChannel(ctx, channelID)
		switch {
		case err == nil:
			consecutiveFailures = 0
		case errors.Is(err, domain.ErrQuotaExceeded):
			return err
		default:
			consecutiveFailures++
			o.log.Error("channel run failed",
				logger.String("group_id", groupID),
				logger.String("channel_id", channelID),
				logger.Int("consecutive_failures", consecutiveFailures),
				logger.Error(err))
			if o.cfg.RetryBudget > 0 && consecutiveFailures >= o.cfg.RetryBudget {
				return fmt.Errorf("retry budget exhausted after %d consecutive channel failures: %w",
					consecutiveFailures, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) runChannel(ctx context.Context, channelID string) error {
	if _, err := o.debit(ctx, "list_videos", 1); err != nil {
		return err
	}

	candidates, err := o.fetcher.FetchCandidates(ctx, channelID, o.cfg.MaxPerChannel)
	if err != nil {
		return &domain.FetchError{ChannelID: channelID, Err: err}
	}

	for _, c := range candidates {
		if obsErr := o.window.Observe(ctx, channelID, c.ViewCount); obsErr != nil {
			o.log.Warn("failed to record stat sample",
				logger.String("channel_id", channelID), logger.Error(obsErr))
		}
	}

	th := o.thresholdFor(ctx, channelID)

	pending := make([]pendingCandidate, len(candidates))
	for i, c := range candidates {
		pending[i] = pendingCandidate{item: c}
	}
	for i := range pending {
		if pubErr := o.processCandidate(ctx, th, &pending[i]); pubErr != nil {
			if errors.Is(pubErr, domain.ErrQuotaExceeded) {
				o.deferCandidates(pending[i:])
				return pubErr
			}
			// Per-candidate failures are counted, never fatal to siblings.
			o.log.Error("candidate failed", logger.Error(pubErr))
		}
	}
	return nil
}

// thresholdFor computes the channel's dynamic threshold from the current
// sample window, falling back to the configured default when the window is
// too thin to classify.
func (o *Orchestrator) thresholdFor(ctx context.Context, channelID string) domain.Threshold {
	samples, err := o.window.Samples(ctx, channelID)
	if err != nil {
		o.log.Warn("failed to load sample window, using fallback threshold",
			logger.String("channel_id", channelID), logger.Error(err))
		return o.engine.Fallback(channelID)
	}
	th, err := o.engine.Compute(channelID, "", samples)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientData) {
			o.log.Warn("threshold computation failed, using fallback",
				logger.String("channel_id", channelID), logger.Error(err))
		}
		return o.engine.Fallback(channelID)
	}
	return th
}

func (o *Orchestrator) processCandidate(ctx context.Context, th domain.Threshold, p *pendingCandidate) error {
	c := p.item
	if !p.counted {
		o.metrics.CandidatesProcessed.Inc()
		o.addTotals(func(t *domain.RunTotals) { t.TotalProcessed++ })
		p.counted = true
	}

	if o.dedup != nil && o.dedup.HasPublished(ctx, c.ID) {
		return nil
	}
	if !th.Eligible(c.ViewCount) {
		o.log.Debug("candidate below threshold",
			logger.String("candidate_id", c.ID),
			logger.Int64("view_count", c.ViewCount),
			logger.Int64("threshold", th.Value))
		return nil
	}

	if o.checker != nil && !p.existenceChecked {
		if _, err := o.debit(ctx, "check_video_exists", 1); err != nil {
			return err
		}
		p.existenceChecked = true
		exists, err := o.checker.VideoExists(ctx, c.ID)
		switch {
		case err != nil:
			// Fail open, like the dedup cache: the upload path has its
			// own idempotency on the sidecar.
			o.log.Warn("destination existence check failed",
				logger.String("candidate_id", c.ID), logger.Error(err))
		case exists:
			o.log.Info("candidate already on destination, skipping",
				logger.String("candidate_id", c.ID))
			if o.dedup != nil {
				if markErr := o.dedup.MarkPublished(ctx, c.ID); markErr != nil {
					o.log.Warn("failed to mark candidate as published",
						logger.String("candidate_id", c.ID), logger.Error(markErr))
				}
			}
			return nil
		}
	}

	if !p.metadataDebited {
		if _, err := o.debit(ctx, "download_metadata", 1); err != nil {
			return err
		}
		p.metadataDebited = true
	}
	if _, err := o.debit(ctx, "upload_video", 1); err != nil {
		return err
	}

	pubCtx := ctx
	if o.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, o.cfg.PublishTimeout)
		defer cancel()
	}
	if err := o.publisher.Publish(pubCtx, c); err != nil {
		o.metrics.CandidatesFailed.Inc()
		o.addTotals(func(t *domain.RunTotals) { t.TotalFailed++ })
		return &domain.PublishError{CandidateID: c.ID, Err: err}
	}

	o.metrics.CandidatesUploaded.Inc()
	o.addTotals(func(t *domain.RunTotals) { t.TotalUploaded++ })
	if o.dedup != nil {
		if err := o.dedup.MarkPublished(ctx, c.ID); err != nil {
			o.log.Warn("failed to mark candidate as published",
				logger.String("candidate_id", c.ID), logger.Error(err))
		}
	}
	o.log.Info("candidate republished",
		logger.String("candidate_id", c.ID),
		logger.String("channel_id", c.ChannelID),
		logger.Int64("view_count", c.ViewCount))
	return nil
}

// debit charges one operation against the ledger using the configured
// per-operation unit cost.
func (o *Orchestrator) debit(ctx context.Context, operation string, count int) (int64, error) {
	cost, ok := o.costs[operation]
	if !ok {
		return 0, fmt.Errorf("%w: no cost configured for %s", domain.ErrInvalidOperation, operation)
	}
	remaining, err := o.ledger.TryDebit(ctx, operation, cost, count)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// deferCandidates parks candidates for the next cycle after quota
// exhaustion. Deferred work drains before any fresh fetching.
func (o *Orchestrator) deferCandidates(candidates []pendingCandidate) {
	if len(candidates) == 0 {
		return
	}
	o.mu.Lock()
	o.deferred = append(o.deferred, candidates...)
	o.totals.TotalDeferred += int64(len(candidates))
	o.mu.Unlock()

	for range candidates {
		o.metrics.CandidatesDeferred.Inc()
	}
	o.log.Warn("candidates deferred after quota exhaustion",
		logger.Int("count", len(candidates)))
}

// drainDeferred re-evaluates parked candidates against current thresholds.
// Items are removed from the queue only when fully handled; a fresh quota
// rejection re-parks the remainder.
func (o *Orchestrator) drainDeferred(ctx context.Context) error {
	o.mu.Lock()
	pending := o.deferred
	o.deferred = nil
	o.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	o.log.Info("draining deferred candidates", logger.Int("count", len(pending)))

	thresholds := make(map[string]domain.Threshold, 4)
	for i := range pending {
		if ctx.Err() != nil {
			o.requeue(pending[i:])
			return ctx.Err()
		}
		channelID := pending[i].item.ChannelID
		th, ok := thresholds[channelID]
		if !ok {
			th = o.thresholdFor(ctx, channelID)
			thresholds[channelID] = th
		}
		if err := o.processCandidate(ctx, th, &pending[i]); err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				o.requeue(pending[i:])
				return err
			}
			o.log.Error("deferred candidate failed", logger.Error(err))
		}
	}
	return nil
}

// requeue puts candidates back without recounting them as deferred.
func (o *Orchestrator) requeue(candidates []pendingCandidate) {
	o.mu.Lock()
	o.deferred = append(candidates, o.deferred...)
	o.mu.Unlock()
}

// DeferredCount reports how many candidates await a future cycle.
func (o *Orchestrator) DeferredCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.deferred)
}

// Totals returns a snapshot of the lifetime processing counters.
func (o *Orchestrator) Totals() domain.RunTotals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totals
}

func (o *Orchestrator) addTotals(apply func(*domain.RunTotals)) {
	o.mu.Lock()
	apply(&o.totals)
	o.mu.Unlock()
}

// TokenStatus surfaces the publishing credential state for the reporting
// API. The orchestrator never refreshes tokens itself.
func (o *Orchestrator) TokenStatus(ctx context.Context) domain.TokenStatus {
	if o.tokens == nil {
		return domain.TokenStatus{Valid: false, Message: "token source not configured"}
	}
	status, err := o.tokens.Status(ctx)
	if err != nil {
		return domain.TokenStatus{Valid: false, Message: err.Error()}
	}
	return status
}
