// Package experiment implements the Experiment Registry (C6): the
// in-memory map of experiment identity to status, metrics, and
// definition, and the sole state machine that owns every experiment
// record, per spec.md §4.6.
package experiment

import (
	"fmt"
	"sync"

	"github.com/aegis-agent/aegis/internal/autonomy"
	"github.com/aegis-agent/aegis/internal/capability"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/dispatch"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/ids"
	"github.com/aegis-agent/aegis/internal/metricsticker"
)

// Syncer is the narrow slice of the Sync Bridge the registry needs,
// mirroring internal/notification and internal/approval's Syncer
// pattern to avoid an import cycle between C6 and C9.
type Syncer interface {
	SyncExperiment(r Record)
	// RestoreExperiments is called once on cold start (optional — an
	// empty result leaves the registry empty, per spec.md §4.9).
	RestoreExperiments() []Record
}

type noopSyncer struct{}

func (noopSyncer) SyncExperiment(Record)          {}
func (noopSyncer) RestoreExperiments() []Record   { return nil }

// Registry is the Experiment Registry (C6).
type Registry struct {
	ctx          *corectx.Context
	gate         autonomy.Gate
	capabilities *capability.Registry
	dispatcher   *dispatch.Pool
	ticker       *metricsticker.Ticker
	sync         Syncer

	mu      sync.Mutex
	records map[string]*Record
}

// New constructs a Registry wired to its collaborators. syncer may be
// nil, in which case sync operations are no-ops.
func New(ctx *corectx.Context, gate autonomy.Gate, capabilities *capability.Registry, dispatcher *dispatch.Pool, ticker *metricsticker.Ticker, syncer Syncer) *Registry {
	if syncer == nil {
		syncer = noopSyncer{}
	}
	r := &Registry{
		ctx:          ctx,
		gate:         gate,
		capabilities: capabilities,
		dispatcher:   dispatcher,
		ticker:       ticker,
		sync:         syncer,
		records:      make(map[string]*Record),
	}
	return r
}

// Restore seeds the registry from the Sync Bridge's cold-start restore,
// if it has anything on file. Call once, before serving traffic.
func (r *Registry) Restore() {
	for _, rec := range r.sync.RestoreExperiments() {
		cp := rec.clone()
		r.mu.Lock()
		r.records[cp.ID] = &cp
		r.mu.Unlock()
	}
}

// Create allocates an id and stores a DEFINED record with empty
// metrics, per spec.md §4.6.
func (r *Registry) Create(def Definition) (string, error) {
	if !capability.Kind(def.Kind).Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
	}

	now := r.ctx.Clock.Now()
	rec := &Record{
		ID:             ids.New("exp"),
		Name:           def.Name,
		Kind:           def.Kind,
		Description:    def.Description,
		Parameters:     cloneMap(def.Parameters),
		State:          StateDefined,
		LastUpdateTime: now,
		Metrics:        map[string]any{},
		Definition:     def,
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	cp := rec.clone()
	r.mu.Unlock()

	r.sync.SyncExperiment(cp)
	r.publishLifecycle(cp.ID, events.EventExperimentCreated, cp.Kind, string(cp.State), "")
	return rec.ID, nil
}

// Start consults the Autonomy Facade before transitioning a DEFINED
// experiment to RUNNING, per spec.md §4.6.
func (r *Registry) Start(id string) (StartResult, error) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return StartResult{}, ErrNotFound
	}
	if rec.State != StateDefined {
		r.mu.Unlock()
		return StartResult{}, ErrNotDefined
	}
	kind, name := rec.Kind, rec.Name
	r.mu.Unlock()

	actionCtx := map[string]any{"id": id, "kind": kind}
	result := r.gate.ExecuteAction(autonomy.ExecuteRequest{
		Category:    "experiment-management",
		Action:      "start_experiment",
		Context:     actionCtx,
		Title:       fmt.Sprintf("Start experiment %q", name),
		Description: fmt.Sprintf("Start %s experiment %q (%s)", kind, name, id),
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			return nil, r.beginRunning(id)
		},
		User: "system",
	})

	switch {
	case result.Prohibited:
		return StartResult{Outcome: StartOutcomeProhibited, Reason: result.Reason}, nil
	case result.ApprovalRequested:
		return StartResult{Outcome: StartOutcomePending, Reason: result.Reason, RequestID: result.RequestID}, nil
	case result.Executed:
		if result.Err != nil {
			return StartResult{}, result.Err
		}
		return StartResult{Outcome: StartOutcomeRunning}, nil
	default:
		return StartResult{}, fmt.Errorf("experiment: unexpected gate result for %q", id)
	}
}

// beginRunning is the execute_fn the Autonomy Facade invokes once
// start_experiment is permitted (immediately, or later on approval). It
// transitions DEFINED→RUNNING, arms the ticker, and submits the task.
func (r *Registry) beginRunning(id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if rec.State != StateDefined {
		r.mu.Unlock()
		return ErrNotDefined
	}

	now := r.ctx.Clock.Now()
	rec.State = StateRunning
	rec.StartTime = &now
	rec.LastUpdateTime = now
	rec.Metrics = map[string]any{
		"progress_percent":            0.0,
		"elapsed_seconds":             0.0,
		"estimated_remaining_seconds": 0.0,
		"cpu_percent":                 0.0,
		"memory_mb":                   0.0,
		"error_count":                 0,
	}
	kind, params := rec.Kind, cloneMap(rec.Parameters)
	cp := rec.clone()
	r.mu.Unlock()

	r.sync.SyncExperiment(cp)
	r.publishLifecycle(id, events.EventExperimentStarted, kind, string(StateRunning), "")

	task, err := r.capabilities.New(capability.Kind(kind))
	if err != nil {
		r.finishFailed(id, fmt.Sprintf("no capability for kind %q: %v", kind, err))
		return err
	}

	r.ticker.Start(id, now)
	r.dispatcher.Submit(id, task, params, r.onTaskComplete, r.onTaskProgress)
	return nil
}

// Stop rejects if id is already terminal; otherwise marks STOPPED and
// asks the dispatcher to cancel, per spec.md §4.6.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if rec.State.Terminal() {
		r.mu.Unlock()
		return ErrAlreadyTerminal
	}
	wasRunning := rec.State == StateRunning
	rec.State = StateStopped
	rec.LastUpdateTime = r.ctx.Clock.Now()
	cp := rec.clone()
	r.mu.Unlock()

	if wasRunning {
		r.dispatcher.Cancel(id)
		r.ticker.Stop(id)
	}

	r.sync.SyncExperiment(cp)
	r.publishLifecycle(id, events.EventExperimentStopped, cp.Kind, string(StateStopped), "")
	return nil
}

// Get returns a snapshot of id's record.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

// List returns a snapshot of every record.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	return out
}

// onTaskComplete is the dispatch.CompletionFunc wired into Submit.
func (r *Registry) onTaskComplete(id string, outcome dispatch.Outcome, result map[string]any, message string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	var eventType events.EventType
	switch outcome {
	case dispatch.OutcomeCompleted:
		if rec.State != StateRunning {
			r.mu.Unlock()
			return
		}
		rec.State = StateCompleted
		rec.StatusMessage = message
		for k, v := range flattenResult(result) {
			rec.Metrics[k] = v
		}
		rec.Metrics["progress_percent"] = 100.0
		rec.Metrics["estimated_remaining_seconds"] = 0.0
		eventType = events.EventExperimentCompleted
	case dispatch.OutcomeFailed:
		if rec.State != StateRunning {
			r.mu.Unlock()
			return
		}
		rec.State = StateFailed
		rec.StatusMessage = message
		if n, ok := rec.Metrics["error_count"].(int); ok {
			rec.Metrics["error_count"] = n + 1
		} else {
			rec.Metrics["error_count"] = 1
		}
		eventType = events.EventExperimentFailed
	case dispatch.OutcomeCancelled:
		// The stop path already transitioned this record to STOPPED;
		// per spec.md §4.7 a cancelled outcome causes no transition.
		r.mu.Unlock()
		return
	}
	rec.LastUpdateTime = r.ctx.Clock.Now()
	cp := rec.clone()
	r.mu.Unlock()

	r.ticker.Stop(id)
	r.sync.SyncExperiment(cp)
	r.publishLifecycle(id, eventType, cp.Kind, string(cp.State), message)
}

// onTaskProgress is the dispatch.ProgressFunc wired into Submit; it
// forwards task-reported progress to the ticker so it can yield to it
// instead of synthesizing, per spec.md §9.
func (r *Registry) onTaskProgress(id string, percent float64) {
	r.ticker.ReportTaskProgress(id, percent)
}

// ApplyTick implements metricsticker.Sink: merge a tick's sample into
// the record's metrics snapshot and report whether it is still
// RUNNING.
func (r *Registry) ApplyTick(id string, sample metricsticker.Sample) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.State != StateRunning {
		r.mu.Unlock()
		return false
	}

	rec.Metrics["elapsed_seconds"] = sample.ElapsedSeconds
	rec.Metrics["progress_percent"] = sample.ProgressPercent
	rec.Metrics["estimated_remaining_seconds"] = sample.EstimatedRemainingSeconds
	rec.Metrics["cpu_percent"] = sample.CPUPercent
	rec.Metrics["memory_mb"] = sample.MemoryMB
	rec.LastUpdateTime = r.ctx.Clock.Now()
	errorCount, _ := rec.Metrics["error_count"].(int)
	cp := rec.clone()
	r.mu.Unlock()

	r.sync.SyncExperiment(cp)
	r.publishMetrics(id, sample, errorCount)
	return true
}

// publishMetrics emits a standalone metrics.updated event per tick, so
// the Sync Bridge's sync_metrics operation (spec.md §4.9) has its own
// producer distinct from the full-record sync_experiment upsert.
func (r *Registry) publishMetrics(experimentID string, sample metricsticker.Sample, errorCount int) {
	if r.ctx == nil || r.ctx.Bus == nil {
		return
	}
	r.ctx.Bus.Publish(events.NewTypedEventWithExperiment(events.SourceRegistry, events.MetricsUpdatedPayload{
		ProgressPercent:          sample.ProgressPercent,
		ElapsedSeconds:           sample.ElapsedSeconds,
		EstimatedRemainingSecond: sample.EstimatedRemainingSeconds,
		CPUPercent:               sample.CPUPercent,
		MemoryMB:                 sample.MemoryMB,
		ErrorCount:               errorCount,
	}, experimentID))
}

func (r *Registry) finishFailed(id, message string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.State != StateRunning {
		r.mu.Unlock()
		return
	}
	rec.State = StateFailed
	rec.StatusMessage = message
	rec.LastUpdateTime = r.ctx.Clock.Now()
	cp := rec.clone()
	r.mu.Unlock()

	r.sync.SyncExperiment(cp)
	r.publishLifecycle(id, events.EventExperimentFailed, cp.Kind, string(StateFailed), message)
}

func (r *Registry) publishLifecycle(experimentID string, eventType events.EventType, kind, status, message string) {
	if r.ctx == nil || r.ctx.Bus == nil {
		return
	}
	r.ctx.Bus.Publish(events.NewEventWithExperiment(eventType, events.SourceRegistry, map[string]any{
		"kind":    kind,
		"status":  status,
		"message": message,
	}, experimentID))
}

// flattenResult flattens scalar fields of a task's result map into
// metrics keys prefixed with "result_", per spec.md §4.6. Nested maps
// and slices are dropped — only scalar (string/number/bool) fields
// belong in the metrics snapshot.
func flattenResult(result map[string]any) map[string]any {
	out := make(map[string]any, len(result))
	for k, v := range result {
		switch v.(type) {
		case string, bool, int, int64, float64, float32:
			out["result_"+k] = v
		}
	}
	return out
}
