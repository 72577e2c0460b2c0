// Package metricsticker implements the Metrics Ticker (C8): one
// lightweight, sleep-dominated goroutine per RUNNING experiment that
// refreshes its metrics snapshot on a fixed interval, per spec.md
// §4.8. Generalized from internal/heartbeat/heartbeat.go's single
// ticker-goroutine/Start-Stop shape to a per-experiment registry of
// tickers.
package metricsticker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aegis-agent/aegis/internal/corectx"
)

// Sample is one tick's worth of refreshed metrics, merged by the Sink
// into the experiment's canonical metrics snapshot.
type Sample struct {
	ElapsedSeconds            float64
	ProgressPercent           float64
	EstimatedRemainingSeconds float64
	CPUPercent                float64
	MemoryMB                  float64
}

// Sink receives ticks and owns the experiment record and its sync push
// (the Experiment Registry, C6). ApplyTick reports whether the
// experiment is still RUNNING; false stops the ticker for that id.
type Sink interface {
	ApplyTick(experimentID string, sample Sample) (stillRunning bool)
}

// run tracks one experiment's ticker goroutine and the progress floor
// it must never regress below.
type run struct {
	cancel    context.CancelFunc
	startedAt time.Time

	mu           sync.Mutex
	lastProgress float64
	taskProgress *float64 // nil until the task reports real progress
}

// Ticker drives periodic metric refresh for every RUNNING experiment.
type Ticker struct {
	interval time.Duration
	clock    corectx.Clock
	sink     Sink
	log      *slog.Logger
	sampler  ResourceSampler

	mu      sync.Mutex
	runners map[string]*run
	wg      sync.WaitGroup
}

// New constructs a Ticker with the given refresh interval (≤0 defaults
// to 5s, per spec.md §4.8).
func New(interval time.Duration, ctx *corectx.Context, sink Sink) *Ticker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := slog.Default()
	var clock corectx.Clock = corectx.SystemClock{}
	if ctx != nil {
		if ctx.Logger != nil {
			log = ctx.Logger
		}
		if ctx.Clock != nil {
			clock = ctx.Clock
		}
	}
	return &Ticker{
		interval: interval,
		clock:    clock,
		sink:     sink,
		log:      log,
		sampler:  NewResourceSampler(),
		runners:  make(map[string]*run),
	}
}

// Start arms the ticker for experimentID, ticking until the Sink
// reports the experiment has left RUNNING or Stop is called.
func (t *Ticker) Start(experimentID string, startedAt time.Time) {
	t.mu.Lock()
	if _, exists := t.runners[experimentID]; exists {
		t.mu.Unlock()
		return
	}
	tickerCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, startedAt: startedAt}
	t.runners[experimentID] = r
	t.mu.Unlock()

	t.wg.Add(1)
	go t.loop(tickerCtx, experimentID, r)
}

// ReportTaskProgress records a task's self-reported progress
// (forwarded from the Task Dispatcher's ProgressFunc). Once a task
// reports real progress the ticker stops synthesizing and defers to
// it, per spec.md §9's "progress synthesis vs. task-reported progress".
func (t *Ticker) ReportTaskProgress(experimentID string, percent float64) {
	t.mu.Lock()
	r, ok := t.runners[experimentID]
	t.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	if percent > r.lastProgress {
		r.lastProgress = percent
	}
	p := r.lastProgress
	r.taskProgress = &p
	r.mu.Unlock()
}

// SetSink rewires the ticker's sink after construction, so the
// Experiment Registry (which must already exist to serve as the sink)
// and the Ticker (which the registry needs a reference to before it
// can exist) can be constructed in either order: build the Ticker with
// a nil sink, construct the Registry with that Ticker, then call
// SetSink(registry) before starting any run.
func (t *Ticker) SetSink(sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Stop disarms the ticker for experimentID, if armed.
func (t *Ticker) Stop(experimentID string) {
	t.mu.Lock()
	r, ok := t.runners[experimentID]
	if ok {
		delete(t.runners, experimentID)
	}
	t.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// StopAll disarms every running ticker and waits for their goroutines
// to return.
func (t *Ticker) StopAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.runners))
	for id := range t.runners {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.Stop(id)
	}
	t.wg.Wait()
}

func (t *Ticker) loop(ctx context.Context, experimentID string, r *run) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	tick := func() bool {
		sample := t.sample(experimentID, r)
		t.mu.Lock()
		sink := t.sink
		t.mu.Unlock()
		if sink == nil {
			return true
		}
		stillRunning := sink.ApplyTick(experimentID, sample)
		if !stillRunning {
			t.Stop(experimentID)
		}
		return stillRunning
	}

	if !tick() {
		return
	}

	for {
		select {
		case <-ticker.C:
			if !tick() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// sample computes one tick's metrics: real elapsed time and resource
// usage, plus a monotonic progress estimate that defers to
// task-reported progress once available, per spec.md §4.8.
func (t *Ticker) sample(experimentID string, r *run) Sample {
	elapsed := t.clock.Now().Sub(r.startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	r.mu.Lock()
	progress := r.lastProgress
	if r.taskProgress != nil {
		if *r.taskProgress > progress {
			progress = *r.taskProgress
		}
	} else {
		synthesized := synthesizeProgress(elapsed)
		if synthesized > progress {
			progress = synthesized
		}
	}
	r.lastProgress = progress
	r.mu.Unlock()

	var remaining float64
	if progress > 0 {
		remaining = elapsed * (100/progress - 1)
	}

	cpu, mem := t.sampler.Sample()

	return Sample{
		ElapsedSeconds:            elapsed,
		ProgressPercent:           progress,
		EstimatedRemainingSeconds: remaining,
		CPUPercent:                cpu,
		MemoryMB:                  mem,
	}
}

// synthesizeProgress is the placeholder progress curve from spec.md
// §4.8, used until a task reports real progress. It never exceeds 95
// so a task (or the terminal COMPLETED transition) is always what
// pushes an experiment over the line to 100.
func synthesizeProgress(elapsedSeconds float64) float64 {
	p := elapsedSeconds / (elapsedSeconds + 30) * 100
	if p > 95 {
		p = 95
	}
	return p
}
