// Package worker provides the background loop that drives orchestrator
// cycles on a fixed cadence.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/shortsync/internal/logger"
)

const (
	defaultTickInterval  = time.Minute
	defaultPruneInterval = 6 * time.Hour
)

// Cycler runs one scheduling pass.
type Cycler interface {
	Cycle(ctx context.Context)
}

// Pruner ages out old stat samples.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// CycleWorker ticks the orchestrator and periodically prunes the sample
// window.
type CycleWorker struct {
	cycler Cycler
	pruner Pruner
	logger logger.Logger

	tickInterval  time.Duration
	pruneInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// Config holds worker configuration options.
type Config struct {
	TickInterval  time.Duration
	PruneInterval time.Duration
}

// NewCycleWorker creates a cycle worker. A nil pruner disables pruning.
func NewCycleWorker(cycler Cycler, pruner Pruner, cfg Config, log logger.Logger) *CycleWorker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = defaultPruneInterval
	}

	return &CycleWorker{
		cycler:        cycler,
		pruner:        pruner,
		logger:        log,
		tickInterval:  cfg.TickInterval,
		pruneInterval: cfg.PruneInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the cycle loop. Starting twice is a no-op.
func (w *CycleWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	if w.pruner != nil {
		w.wg.Add(1)
		go w.runPrune(ctx)
	}

	w.logger.Info("cycle worker started",
		logger.Duration("tick_interval", w.tickInterval))
}

// Stop gracefully stops the worker, waiting for an in-flight cycle.
func (w *CycleWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("cycle worker stopped")
}

// IsRunning returns whether the worker has been started.
func (w *CycleWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *CycleWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	// Run immediately on start so a restart never waits a full tick.
	w.cycler.Cycle(ctx)

	for {
		select {
		case <-ticker.C:
			w.cycler.Cycle(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *CycleWorker) runPrune(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.pruner.Prune(ctx); err != nil {
				w.logger.Error("sample prune failed", logger.Error(err))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
