package sync

import (
	"context"
	"time"

	"filippo.io/age"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/experiment"
	"github.com/aegis-agent/aegis/internal/notification"
)

// FailuresTotal counts sync operations that failed after retry. It is
// exported so cmd/agentd can register it once with a Prometheus
// registry, per spec.md §7's "a persistent-failure counter is exposed
// in metrics".
var FailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_sync_failures_total",
	Help: "Sync Bridge operations that failed after retry, by entity kind.",
}, []string{"kind"})

// Bridge is the Sync Bridge (C9). It implements notification.Syncer,
// approval.Syncer, and experiment.Syncer so each of those packages can
// depend on its own narrow interface without importing this package.
type Bridge struct {
	ctx     *corectx.Context
	client  *RemoteClient
	enabled bool
	seal    sealer

	unsubscribeLog     func()
	unsubscribeMetrics func()
}

// New constructs a Bridge. When cfg.IsEnabled() is false, every
// operation is a no-op — the in-memory state remains authoritative and
// no network call is attempted, per spec.md §4.9. identity may be nil
// (continuation refs then travel unsealed).
func New(ctx *corectx.Context, cfg config.SyncConfig, client *RemoteClient, identity *age.X25519Identity) *Bridge {
	b := &Bridge{
		ctx:     ctx,
		client:  client,
		enabled: cfg.IsEnabled() && client != nil,
		seal:    newSealer(identity),
	}
	b.subscribeLogAndMetrics()
	return b
}

// Close unsubscribes the bridge from the event bus.
func (b *Bridge) Close() {
	if b.unsubscribeLog != nil {
		b.unsubscribeLog()
	}
	if b.unsubscribeMetrics != nil {
		b.unsubscribeMetrics()
	}
}

func (b *Bridge) subscribeLogAndMetrics() {
	if b.ctx == nil || b.ctx.Bus == nil {
		return
	}
	b.unsubscribeLog = b.ctx.Bus.Subscribe(func(e events.Event) {
		payload, ok := events.ExtractPayload[events.LogEntryPayload](e)
		if !ok {
			return
		}
		b.syncLogEntry(e.ExperimentID, payload, e.Timestamp)
	}, events.EventLogEntry)

	b.unsubscribeMetrics = b.ctx.Bus.Subscribe(func(e events.Event) {
		payload, ok := events.ExtractPayload[events.MetricsUpdatedPayload](e)
		if !ok {
			return
		}
		b.syncMetricsEvent(e.ExperimentID, payload, e.Timestamp)
	}, events.EventMetricsUpdated)
}

// --- experiment.Syncer ---

func (b *Bridge) SyncExperiment(r experiment.Record) {
	if !b.enabled {
		return
	}
	if err := b.client.post(context.Background(), "/v1/experiments", r); err != nil {
		b.fail("experiment", r.ID, err)
	}
}

func (b *Bridge) RestoreExperiments() []experiment.Record {
	if !b.enabled {
		return nil
	}
	var out []experiment.Record
	if err := b.client.get(context.Background(), "/v1/experiments", &out); err != nil {
		b.fail("experiment-restore", "", err)
		return nil
	}
	return out
}

// --- notification.Syncer ---

func (b *Bridge) SyncNotification(n notification.Notification) {
	if !b.enabled {
		return
	}
	if err := b.client.post(context.Background(), "/v1/notifications", n); err != nil {
		b.fail("notification", n.ID, err)
	}
}

func (b *Bridge) UpdateNotification(n notification.Notification) {
	if !b.enabled {
		return
	}
	if err := b.client.post(context.Background(), "/v1/notifications/"+n.ID, n); err != nil {
		b.fail("notification-update", n.ID, err)
	}
}

func (b *Bridge) RestoreNotifications() []notification.Notification {
	if !b.enabled {
		return nil
	}
	var out []notification.Notification
	if err := b.client.get(context.Background(), "/v1/notifications", &out); err != nil {
		b.fail("notification-restore", "", err)
		return nil
	}
	return out
}

// --- approval.Syncer ---

func (b *Bridge) SyncApproval(r approval.Request) {
	if !b.enabled {
		return
	}
	wire, err := b.sealRequest(r)
	if err != nil {
		b.fail("approval", r.ID, err)
		return
	}
	if err := b.client.post(context.Background(), "/v1/approvals", wire); err != nil {
		b.fail("approval", r.ID, err)
	}
}

func (b *Bridge) UpdateApproval(r approval.Request) {
	if !b.enabled {
		return
	}
	wire, err := b.sealRequest(r)
	if err != nil {
		b.fail("approval-update", r.ID, err)
		return
	}
	if err := b.client.post(context.Background(), "/v1/approvals/"+r.ID, wire); err != nil {
		b.fail("approval-update", r.ID, err)
	}
}

func (b *Bridge) PendingApprovals() []approval.Request {
	if !b.enabled {
		return nil
	}
	var wire []approval.Request
	if err := b.client.get(context.Background(), "/v1/approvals/pending", &wire); err != nil {
		b.fail("approval-restore", "", err)
		return nil
	}
	out := make([]approval.Request, 0, len(wire))
	for _, r := range wire {
		opened, err := b.seal.open(r.ContinuationRef)
		if err != nil {
			b.fail("approval-restore", r.ID, err)
			continue
		}
		r.ContinuationRef = opened
		out = append(out, r)
	}
	return out
}

func (b *Bridge) sealRequest(r approval.Request) (approval.Request, error) {
	sealed, err := b.seal.seal(r.ContinuationRef)
	if err != nil {
		return approval.Request{}, err
	}
	r.ContinuationRef = sealed
	return r, nil
}

// --- log/metrics passthrough (event-driven, not a consumer-declared interface) ---

func (b *Bridge) syncLogEntry(experimentID string, payload events.LogEntryPayload, ts time.Time) {
	if !b.enabled {
		return
	}
	entry := map[string]any{
		"experiment_id": experimentID,
		"level":         payload.Level,
		"message":       payload.Message,
		"timestamp":     ts,
	}
	if err := b.client.post(context.Background(), "/v1/logs", entry); err != nil {
		b.fail("log", experimentID, err)
	}
}

func (b *Bridge) syncMetricsEvent(experimentID string, payload events.MetricsUpdatedPayload, ts time.Time) {
	if !b.enabled {
		return
	}
	body := map[string]any{
		"experiment_id": experimentID,
		"metrics":       payload,
		"timestamp":     ts,
	}
	if err := b.client.post(context.Background(), "/v1/metrics", body); err != nil {
		b.fail("metrics", experimentID, err)
	}
}

// fail logs a sync failure, increments the Prometheus counter, and
// publishes a SyncFailedPayload — never propagated to the caller, per
// spec.md §7: "the in-memory state remains authoritative".
func (b *Bridge) fail(kind, id string, err error) {
	FailuresTotal.WithLabelValues(kind).Inc()
	if b.ctx != nil && b.ctx.Logger != nil {
		b.ctx.Logger.Warn("sync: operation failed", "kind", kind, "id", id, "error", err)
	}
	if b.ctx == nil || b.ctx.Bus == nil {
		return
	}
	b.ctx.Bus.Publish(events.NewTypedEvent(events.SourceSync, events.SyncFailedPayload{
		Kind:  kind,
		ID:    id,
		Error: err.Error(),
	}))
}
