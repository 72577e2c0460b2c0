package autonomy

import (
	"fmt"
	"sync"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/governance"
	"github.com/aegis-agent/aegis/internal/ids"
	"github.com/aegis-agent/aegis/internal/notification"
)

// continuation is the Pending continuation of spec.md §3: the original
// (category, action, context, execute_fn), keyed by action id. The
// requester and the creation time are not kept here. It is destroyed on
// terminal approval outcome.
type continuation struct {
	category string
	action   string
	context  map[string]any
	execute  ExecuteFn
}

// Facade is the Autonomy Facade (C5): composes the Decision Matrix and
// Risk Assessment into can_execute, and runs execute_action with the
// right gate.
type Facade struct {
	ctx      *corectx.Context
	matrix   *governance.Matrix
	risk     *governance.ToleranceRegistry
	notify   *notification.Store
	approval *approval.Workflow

	mu      sync.Mutex
	pending map[string]*continuation
}

// New constructs a Facade wired to the given Decision Matrix, Risk
// Assessment registry, Notification Store, and Approval Workflow.
func New(ctx *corectx.Context, matrix *governance.Matrix, risk *governance.ToleranceRegistry, notify *notification.Store, wf *approval.Workflow) *Facade {
	return &Facade{
		ctx:      ctx,
		matrix:   matrix,
		risk:     risk,
		notify:   notify,
		approval: wf,
		pending:  make(map[string]*continuation),
	}
}

// CanExecute implements spec.md §4.5: the Decision Matrix is consulted
// first; PROHIBITED always wins. Otherwise Risk Assessment is run and
// compared to tolerance — exceeding tolerance vetoes regardless of the
// matrix level. Only then is the matrix level itself mapped to a
// verdict.
func (f *Facade) CanExecute(category, action string, context map[string]any) (bool, string) {
	level := f.matrix.ApprovalLevel(category, action, context)
	if level == governance.LevelProhibited {
		return false, "Action prohibited"
	}

	assessment := governance.Assess(action, context)
	if ok, reason := f.risk.WithinTolerance(assessment); !ok {
		return false, reason
	}

	switch level {
	case governance.LevelAutonomous:
		return true, ""
	case governance.LevelNotify:
		return true, "notify"
	case governance.LevelApprovalRequired:
		return false, "approval required"
	default:
		return false, "approval required"
	}
}

// ExecuteAction implements spec.md §4.5's five branches.
func (f *Facade) ExecuteAction(req ExecuteRequest) Result {
	actionID := ids.New("act")
	permitted, reason := f.CanExecute(req.Category, req.Action, req.Context)

	level := f.matrix.ApprovalLevel(req.Category, req.Action, req.Context)

	switch {
	case !permitted && level == governance.LevelProhibited:
		f.notifyProhibited(req, actionID, reason)
		return Result{ActionID: actionID, Prohibited: true, Reason: reason}

	case !permitted:
		// Risk-vetoed or approval-required: both park a continuation and
		// ask a human, per spec.md §4.5 ("if risk exceeds tolerance...
		// regardless of the matrix").
		return f.parkForApproval(req, actionID, reason)

	case reason == "notify":
		f.notify.Create(notification.Notification{
			Title:           req.Title,
			Message:         req.Description,
			Type:            notification.TypeInfo,
			Priority:        notification.PriorityLow,
			RelatedEntityID: actionID,
		})
		result, err := req.ExecuteFn(req.Context)
		return Result{ActionID: actionID, Executed: true, Result: result, Err: err}

	default: // autonomous
		result, err := req.ExecuteFn(req.Context)
		return Result{ActionID: actionID, Executed: true, Result: result, Err: err}
	}
}

func (f *Facade) notifyProhibited(req ExecuteRequest, actionID, reason string) {
	f.notify.Create(notification.Notification{
		Title:           req.Title,
		Message:         fmt.Sprintf("%s: %s", req.Description, reason),
		Type:            notification.TypeWarning,
		Priority:        notification.PriorityHigh,
		RelatedEntityID: actionID,
	})
}

func (f *Facade) parkForApproval(req ExecuteRequest, actionID, reason string) Result {
	f.mu.Lock()
	f.pending[actionID] = &continuation{
		category: req.Category,
		action:   req.Action,
		context:  req.Context,
		execute:  req.ExecuteFn,
	}
	f.mu.Unlock()

	areq := f.approval.Create(req.Title, req.Description, req.Category, req.Action,
		req.Context, req.User, req.ExpiryHours, f.resumeCallback(actionID))

	return Result{
		ActionID:          actionID,
		ApprovalRequested: true,
		RequestID:         areq.ID,
		Reason:            reason,
	}
}

// resumeCallback builds the Approval Workflow callback for actionID.
// On APPROVED it runs the stored execute_fn exactly once, emits a
// success/failure notification, and deletes the pending entry. Every
// other terminal outcome (REJECTED/EXPIRED/CANCELLED) emits a matching
// notification and deletes the entry without ever running execute_fn.
func (f *Facade) resumeCallback(actionID string) approval.Callback {
	return func(outcome approval.Outcome) {
		f.mu.Lock()
		cont, ok := f.pending[actionID]
		delete(f.pending, actionID)
		f.mu.Unlock()

		if !ok {
			return
		}

		switch outcome.Status {
		case approval.StatusApproved:
			result, err := cont.execute(cont.context)
			f.notifyResumeOutcome(actionID, cont, result, err)
		default:
			f.notify.Create(notification.Notification{
				Title:           fmt.Sprintf("%s.%s %s", cont.category, cont.action, outcome.Status),
				Message:         outcome.DecisionReason,
				Type:            notification.TypeStatusUpdate,
				Priority:        notification.PriorityMedium,
				RelatedEntityID: actionID,
			})
		}
	}
}

func (f *Facade) notifyResumeOutcome(actionID string, cont *continuation, result map[string]any, err error) {
	n := notification.Notification{
		RelatedEntityID: actionID,
		Type:            notification.TypeStatusUpdate,
		Priority:        notification.PriorityMedium,
		Title:           fmt.Sprintf("%s.%s completed", cont.category, cont.action),
	}
	if err != nil {
		n.Title = fmt.Sprintf("%s.%s failed", cont.category, cont.action)
		n.Message = err.Error()
		n.Priority = notification.PriorityHigh
		n.Type = notification.TypeError
	} else if result != nil {
		n.Message = fmt.Sprintf("%v", result)
	}
	f.notify.Create(n)
}

// RestorePending rebuilds the pending-continuation map and the
// Approval Workflow's state on cold start. The original execute_fn
// closures cannot survive a restart; callers supply rebuild to
// reconstruct an ExecuteFn from a restored request's (category,
// action) — typically by re-resolving the same capability factory used
// at first dispatch.
func (f *Facade) RestorePending(rebuild func(category, action string, context map[string]any) ExecuteFn) {
	f.approval.RestorePending(func(req *approval.Request) approval.Callback {
		actionID := req.ID
		f.mu.Lock()
		f.pending[actionID] = &continuation{
			category: req.Category,
			action:   req.Action,
			context:  req.Context,
			execute:  rebuild(req.Category, req.Action, req.Context),
		}
		f.mu.Unlock()
		return f.resumeCallback(actionID)
	})
}

var _ Gate = (*Facade)(nil)
