// Package dispatch implements the Task Dispatcher (C7): a bounded
// worker pool that runs opaque capability.Capability instances and
// reports completion back through a callback, generalized from the
// teacher's internal/actors.ActorPool (LLM capacity slots → a
// fixed-width task worker pool).
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aegis-agent/aegis/internal/capability"
)

// Outcome is what the registry's completion callback receives.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// CompletionFunc is invoked exactly once per submitted run, per
// spec.md §4.7's three branches (completed/failed/cancelled).
type CompletionFunc func(experimentID string, outcome Outcome, result map[string]any, message string)

// ProgressFunc forwards a capability's self-reported progress to the
// caller (typically the Metrics Ticker), per spec.md §9's
// "task-reported progress" path.
type ProgressFunc func(experimentID string, percent float64)

// runningTask tracks one in-flight run. Caller must hold Pool.mu to
// read/write the runners map.
type runningTask struct {
	cancel context.CancelFunc
}

// Pool is a bounded worker pool of fixed width (default 5, per
// spec.md §4.7). Submit never blocks the caller waiting for a slot —
// each submission gets its own goroutine that waits on a semaphore
// channel sized to the pool width. This simplifies the teacher's
// wake-scheduler/poll-loop shape: the pool has no preemption or
// provider affinity, only a fixed concurrency cap.
type Pool struct {
	width int
	log   *slog.Logger
	sem   chan struct{}

	mu      sync.Mutex
	runners map[string]*runningTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Pool of the given width (≤0 defaults to 5).
func New(width int, log *slog.Logger) *Pool {
	if width <= 0 {
		width = 5
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		width:   width,
		log:     log,
		sem:     make(chan struct{}, width),
		runners: make(map[string]*runningTask),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit runs cap.Execute(params) for experimentID on a worker slot.
// It returns immediately; a goroutine waits for the slot (the teacher's pool instead
// polls a scheduler loop; this pool is simpler because it has no
// priority or affinity rules to weigh — a semaphore-guarded goroutine
// is the idiomatic equivalent, not a regression).
func (p *Pool) Submit(experimentID string, c capability.Capability, params map[string]any, onComplete CompletionFunc, onProgress ProgressFunc) {
	taskCtx, taskCancel := context.WithCancel(p.ctx)

	p.mu.Lock()
	p.runners[experimentID] = &runningTask{cancel: taskCancel}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.runners, experimentID)
			p.mu.Unlock()
		}()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-taskCtx.Done():
			onComplete(experimentID, OutcomeCancelled, nil, "cancelled before a worker slot was claimed")
			return
		}

		p.run(taskCtx, experimentID, c, params, onComplete, onProgress)
	}()
}

func (p *Pool) run(ctx context.Context, experimentID string, c capability.Capability, params map[string]any, onComplete CompletionFunc, onProgress ProgressFunc) {
	report := func(percent float64) {
		if onProgress != nil {
			onProgress(experimentID, percent)
		}
	}

	done := make(chan capability.Result, 1)
	go func() {
		done <- c.Execute(params, report)
	}()

	select {
	case result := <-done:
		switch result.Status {
		case capability.StatusCompleted:
			onComplete(experimentID, OutcomeCompleted, result.Result, result.Message)
		default:
			onComplete(experimentID, OutcomeFailed, result.Result, result.Message)
		}
	case <-ctx.Done():
		// Cooperative cancellation: the capability may or may not
		// observe ctx; we report cancelled regardless, per spec.md
		// §4.7's "the registry's STOPPED transition is authoritative
		// even if the underlying task later completes". A late result
		// from `done` is simply never read again.
		onComplete(experimentID, OutcomeCancelled, nil, "cancelled")
	}
}

// Cancel requests cooperative cancellation of experimentID's run, if
// one is in flight. A not-yet-started task (still waiting on a worker
// slot) is prevented from ever running; a running task is signalled to
// wind down.
func (p *Pool) Cancel(experimentID string) {
	p.mu.Lock()
	rt, ok := p.runners[experimentID]
	p.mu.Unlock()
	if !ok {
		return
	}
	rt.cancel()
}

// Stop cancels every in-flight run and waits for all worker goroutines
// to return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Width reports the pool's configured concurrency cap.
func (p *Pool) Width() int {
	return p.width
}

// InFlight reports the number of worker slots currently claimed.
func (p *Pool) InFlight() int {
	return len(p.sem)
}
