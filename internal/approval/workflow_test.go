package approval

import (
	"log/slog"
	"testing"
	"time"

	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/notification"
)

func intPtr(v int) *int { return &v }

func newTestWorkflow(clock corectx.Clock) (*Workflow, *notification.Store) {
	ctx := &corectx.Context{
		Clock:  clock,
		Logger: slog.Default(),
		Bus:    events.NewBus(16),
	}
	notif := notification.New(ctx, nil)
	return New(ctx, notif, nil), notif
}

func TestWorkflow_Create_LinksNotification(t *testing.T) {
	w, notif := newTestWorkflow(corectx.NewFakeClock(time.Now()))

	req := w.Create("spend $75", "agent wants to spend money", "financial", "spend_money",
		map[string]any{"amount": 75}, "alice", intPtr(24), nil)

	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.NotificationID == "" {
		t.Fatal("expected a linked notification id")
	}
	n, err := notif.Get(req.NotificationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.ActionRequired {
		t.Fatal("expected linked notification to require action")
	}
}

func TestWorkflow_Approve_InvokesCallbackOnce(t *testing.T) {
	w, _ := newTestWorkflow(corectx.NewFakeClock(time.Now()))

	calls := 0
	var lastOutcome Outcome
	req := w.Create("t", "d", "c", "a", nil, "bob", intPtr(24), func(o Outcome) {
		calls++
		lastOutcome = o
	})

	if _, err := w.Approve(req.ID, "bob", "looks fine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected callback invoked once, got %d", calls)
	}
	if lastOutcome.Status != StatusApproved {
		t.Fatalf("expected approved outcome, got %s", lastOutcome.Status)
	}

	if _, err := w.Approve(req.ID, "bob", "again"); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending on repeat approve, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected callback still invoked once, got %d", calls)
	}
}

func TestWorkflow_Reject(t *testing.T) {
	w, _ := newTestWorkflow(corectx.NewFakeClock(time.Now()))

	var got Outcome
	req := w.Create("t", "d", "c", "a", nil, "", intPtr(24), func(o Outcome) { got = o })

	if _, err := w.Reject(req.ID, "carol", "too risky"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
}

func TestWorkflow_Cancel(t *testing.T) {
	w, _ := newTestWorkflow(corectx.NewFakeClock(time.Now()))

	req := w.Create("t", "d", "c", "a", nil, "", intPtr(24), nil)
	if _, err := w.Cancel(req.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := w.Get(req.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

// TestWorkflow_ExpiryOnTouch_FiresCallbackExactlyOnce mirrors Seed
// Scenario D literally: create(..., expiry_hours=0, ...) then advance
// the fake clock by 1s, so the request must be observed EXPIRED on
// the very next touch and invoke its callback exactly once, even
// across repeat touches. expiry_hours=0 is an explicit caller choice,
// not "not supplied" — it must NOT be coerced up to the 24h default.
func TestWorkflow_ExpiryOnTouch_FiresCallbackExactlyOnce(t *testing.T) {
	clock := corectx.NewFakeClock(time.Now())
	w, _ := newTestWorkflow(clock)

	calls := 0
	req := w.Create("t", "d", "c", "a", nil, "", intPtr(0), func(Outcome) { calls++ })

	clock.Advance(time.Second)

	got, err := w.Get(req.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if calls != 1 {
		t.Fatalf("expected callback fired exactly once, got %d", calls)
	}

	// Repeat touches must not re-fire the callback.
	if _, err := w.Get(req.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected callback still fired exactly once after repeat touch, got %d", calls)
	}
}

// TestWorkflow_Create_OmittedExpiryDefaultsTo24h covers the nil path
// directly: no expiry supplied at all must still default to 24h,
// distinct from an explicit 0.
func TestWorkflow_Create_OmittedExpiryDefaultsTo24h(t *testing.T) {
	clock := corectx.NewFakeClock(time.Now())
	w, _ := newTestWorkflow(clock)

	calls := 0
	req := w.Create("t", "d", "c", "a", nil, "", nil, func(Outcome) { calls++ })

	clock.Advance(time.Second)
	got, err := w.Get(req.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected still pending 1s after an omitted (default 24h) expiry, got %s", got.Status)
	}
	if calls != 0 {
		t.Fatalf("expected no callback before expiry, got %d calls", calls)
	}
}

func TestWorkflow_List_FiltersByStatus(t *testing.T) {
	w, _ := newTestWorkflow(corectx.NewFakeClock(time.Now()))

	a := w.Create("t", "d", "financial", "spend_money", nil, "", intPtr(24), nil)
	w.Create("t2", "d2", "content", "generate_ebook", nil, "", intPtr(24), nil)
	w.Approve(a.ID, "bob", "")

	pending := w.List(Filter{Status: StatusPending})
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}
}

func TestWorkflow_Sweep_ExpiresAllPastDue(t *testing.T) {
	clock := corectx.NewFakeClock(time.Now())
	w, _ := newTestWorkflow(clock)

	calls := 0
	w.Create("t", "d", "c", "a", nil, "", intPtr(1), func(Outcome) { calls++ })
	w.Create("t2", "d2", "c", "a", nil, "", intPtr(1), func(Outcome) { calls++ })

	clock.Advance(2 * time.Hour)
	w.Sweep()

	if calls != 2 {
		t.Fatalf("expected both requests expired by sweep, got %d callback calls", calls)
	}
}

type fakeApprovalSyncer struct {
	synced  []Request
	updated []Request
	pending []Request
}

func (f *fakeApprovalSyncer) SyncApproval(r Request)        { f.synced = append(f.synced, r) }
func (f *fakeApprovalSyncer) UpdateApproval(r Request)      { f.updated = append(f.updated, r) }
func (f *fakeApprovalSyncer) PendingApprovals() []Request   { return f.pending }

func TestWorkflow_RestorePending_ReattachesCallbackAndSweeps(t *testing.T) {
	clock := corectx.NewFakeClock(time.Now())
	ctx := &corectx.Context{Clock: clock, Logger: slog.Default(), Bus: events.NewBus(16)}
	notif := notification.New(ctx, nil)

	past := clock.Now().Add(-time.Hour)
	syncer := &fakeApprovalSyncer{
		pending: []Request{
			{ID: "appr_restored", Status: StatusPending, ExpiresAt: &past, Category: "financial", Action: "spend_money"},
		},
	}
	w := New(ctx, notif, syncer)

	calls := 0
	w.RestorePending(func(req *Request) Callback {
		return func(Outcome) { calls++ }
	})

	if calls != 1 {
		t.Fatalf("expected restored request to be swept and callback fired once, got %d", calls)
	}
}
