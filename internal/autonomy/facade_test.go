package autonomy

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/governance"
	"github.com/aegis-agent/aegis/internal/notification"
)

func intPtr(v int) *int { return &v }

func newTestFacade(clock corectx.Clock) *Facade {
	ctx := &corectx.Context{
		Clock:  clock,
		Logger: slog.Default(),
		Bus:    events.NewBus(16),
	}
	matrix := governance.NewMatrix(ctx.Logger)
	governance.SeedDefaults(matrix)
	risk := governance.NewToleranceRegistry()
	notif := notification.New(ctx, nil)
	wf := approval.New(ctx, notif, nil)
	return New(ctx, matrix, risk, notif, wf)
}

func TestCanExecute_AutonomousByDefault(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ok, reason := f.CanExecute("experiment-management", "stop_experiment", nil)
	if !ok {
		t.Fatalf("expected autonomous permit, got reason %q", reason)
	}
}

func TestCanExecute_UnknownPairFailsClosed(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ok, reason := f.CanExecute("unknown", "whatever", nil)
	if ok {
		t.Fatal("expected unknown pair to fail closed")
	}
	if reason != "approval required" {
		t.Fatalf("expected approval required, got %q", reason)
	}
}

func TestCanExecute_MatrixProhibitedWins(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ok, reason := f.CanExecute("financial", "spend_money", map[string]any{"amount": 100.0})
	if ok {
		t.Fatal("expected prohibited")
	}
	if reason != "Action prohibited" {
		t.Fatalf("expected prohibited reason, got %q", reason)
	}
}

// TestCanExecute_RiskVetoOverridesAutonomousMatrix encodes Seed
// Scenario E: a matrix-autonomous action is vetoed by the conservative
// risk profile when its context scores reputation risk above ceiling.
func TestCanExecute_RiskVetoOverridesAutonomousMatrix(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))
	if err := f.risk.SetProfile("conservative"); err != nil {
		t.Fatalf("set profile: %v", err)
	}

	ok, reason := f.CanExecute("content", "generate_ebook", map[string]any{
		"public":         true,
		"sensitive_data": true,
	})
	if ok {
		t.Fatal("expected risk veto to override the autonomous matrix verdict")
	}
	if reason == "" {
		t.Fatal("expected a human-readable veto reason")
	}
}

func TestExecuteAction_AutonomousRunsInline(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ran := false
	result := f.ExecuteAction(ExecuteRequest{
		Category: "experiment-management",
		Action:   "stop_experiment",
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			ran = true
			return map[string]any{"ok": true}, nil
		},
	})

	if !ran {
		t.Fatal("expected execute_fn to run inline")
	}
	if !result.Executed {
		t.Fatal("expected Executed=true")
	}
}

func TestExecuteAction_Prohibited(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	result := f.ExecuteAction(ExecuteRequest{
		Category: "financial",
		Action:   "spend_money",
		Context:  map[string]any{"amount": 100.0},
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			t.Fatal("execute_fn must not run for a prohibited action")
			return nil, nil
		},
	})

	if !result.Prohibited {
		t.Fatal("expected Prohibited=true")
	}
}

func TestExecuteAction_ApprovalRequired_ResumesOnApproval(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ran := false
	result := f.ExecuteAction(ExecuteRequest{
		Category:    "financial",
		Action:      "spend_money",
		Context:     map[string]any{"amount": 30.0},
		Title:       "spend $30",
		Description: "test spend",
		ExpiryHours: intPtr(24),
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			ran = true
			return map[string]any{"spent": 30}, nil
		},
	})

	if !result.ApprovalRequested {
		t.Fatal("expected ApprovalRequested=true")
	}
	if ran {
		t.Fatal("execute_fn must not run before approval")
	}

	if _, err := f.approval.Approve(result.RequestID, "bob", "fine"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !ran {
		t.Fatal("expected execute_fn to run after approval")
	}
}

func TestExecuteAction_ApprovalRequired_NeverRunsOnRejection(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ran := false
	result := f.ExecuteAction(ExecuteRequest{
		Category:    "financial",
		Action:      "spend_money",
		Context:     map[string]any{"amount": 30.0},
		ExpiryHours: intPtr(24),
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			ran = true
			return nil, nil
		},
	})

	if _, err := f.approval.Reject(result.RequestID, "bob", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if ran {
		t.Fatal("execute_fn must never run after rejection")
	}
}

func TestExecuteAction_NotifyRunsInlineAndNotifies(t *testing.T) {
	f := newTestFacade(corectx.NewFakeClock(time.Now()))

	ran := false
	result := f.ExecuteAction(ExecuteRequest{
		Category: "publishing",
		Action:   "affiliate_site",
		ExecuteFn: func(map[string]any) (map[string]any, error) {
			ran = true
			return nil, errors.New("capability not installed")
		},
	})

	if !ran {
		t.Fatal("expected execute_fn to run inline for NOTIFY level")
	}
	if result.Err == nil {
		t.Fatal("expected the execute_fn error to surface in the result")
	}
	if got := f.notify.List(notification.Filter{Type: notification.TypeInfo}); len(got) != 1 {
		t.Fatalf("expected one info notification for the NOTIFY path, got %d", len(got))
	}
}
