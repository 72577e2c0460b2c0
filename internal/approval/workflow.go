package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/ids"
	"github.com/aegis-agent/aegis/internal/notification"
)

// Syncer is the narrow slice of the Sync Bridge the workflow needs,
// mirroring internal/notification's Syncer to avoid an import cycle.
type Syncer interface {
	SyncApproval(r Request)
	UpdateApproval(r Request)
	// PendingApprovals is called once on cold start to rebuild any
	// PENDING requests the remote store still has on file.
	PendingApprovals() []Request
}

type noopSyncer struct{}

func (noopSyncer) SyncApproval(Request)          {}
func (noopSyncer) UpdateApproval(Request)        {}
func (noopSyncer) PendingApprovals() []Request   { return nil }

// Filter narrows a List query.
type Filter struct {
	Category   string
	Action     string
	Status     Status
	TargetUser string
}

// Workflow is the Approval Workflow (C4): create/get/list/approve/
// reject/cancel, plus an expiry sweep triggered both on touching reads
// and periodically by a housekeeping cron job.
type Workflow struct {
	mu       sync.Mutex
	requests map[string]*Request

	ctx     *corectx.Context
	notify  *notification.Store
	sync    Syncer
	cron    *cron.Cron
	cronJob cron.EntryID
}

// New constructs an empty Workflow. A nil syncer is replaced with a
// no-op, matching the notification store's convention.
func New(ctx *corectx.Context, notify *notification.Store, syncer Syncer) *Workflow {
	if syncer == nil {
		syncer = noopSyncer{}
	}
	return &Workflow{
		requests: make(map[string]*Request),
		ctx:      ctx,
		notify:   notify,
		sync:     syncer,
	}
}

// Create opens a new PENDING request, links a high-priority approval
// notification, and stores the callback to invoke on decision.
// expiryHours nil means "not supplied" and defaults to 24h, per
// spec.md §4.4; a non-nil 0 is the caller's explicit choice and is
// honored as-is, expiring the request on its very next touch.
func (w *Workflow) Create(title, description, category, action string, ctxData map[string]any, user string, expiryHours *int, cb Callback) *Request {
	hours := 24
	if expiryHours != nil {
		hours = *expiryHours
	}

	w.mu.Lock()
	now := w.ctx.Clock.Now()
	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	req := &Request{
		ID:          ids.New("appr"),
		Title:       title,
		Description: description,
		Category:    category,
		Action:      action,
		Context:     ctxData,
		TargetUser:  user,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
		Status:      StatusPending,
		callback:    cb,
	}
	req.ContinuationRef = ids.New("cont")
	w.requests[req.ID] = req
	w.mu.Unlock()

	notif := w.notify.Create(notification.Notification{
		Title:           title,
		Message:         description,
		Type:            notification.TypeApprovalRequest,
		Priority:        notification.PriorityHigh,
		TargetUser:      user,
		RelatedEntityID: req.ID,
		RelatedEntityKind: "approval_request",
		ActionRequired:  true,
		AllowedActions:  []string{"approve", "reject", "cancel"},
		ExpiresAt:       &expiresAt,
	})

	w.mu.Lock()
	req.NotificationID = notif.ID
	cp := *req
	w.mu.Unlock()

	w.publishRequested(cp)
	w.sync.SyncApproval(cp)
	return &cp
}

// Get returns the request by id, applying the expiry sweep to it first
// (spec.md §4.4: the sweep is triggered on every touching read).
func (w *Workflow) Get(id string) (*Request, error) {
	w.mu.Lock()
	req, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expired := w.expireLocked(req)
	cp := *req
	w.mu.Unlock()

	if expired {
		w.finish(cp)
	}
	return &cp, nil
}

// List returns requests matching filter, applying the expiry sweep to
// the whole set first.
func (w *Workflow) List(filter Filter) []Request {
	w.mu.Lock()
	var toFinish []Request
	out := make([]Request, 0, len(w.requests))
	for _, req := range w.requests {
		if w.expireLocked(req) {
			toFinish = append(toFinish, *req)
		}
		if filter.Category != "" && req.Category != filter.Category {
			continue
		}
		if filter.Action != "" && req.Action != filter.Action {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.TargetUser != "" && req.TargetUser != filter.TargetUser {
			continue
		}
		out = append(out, *req)
	}
	w.mu.Unlock()

	for _, r := range toFinish {
		w.finish(r)
	}
	return out
}

// Approve transitions a PENDING request to APPROVED. One-shot: repeat
// calls on a non-pending request return ErrNotPending.
func (w *Workflow) Approve(id, user, reason string) (*Request, error) {
	return w.decide(id, StatusApproved, user, reason)
}

// Reject transitions a PENDING request to REJECTED.
func (w *Workflow) Reject(id, user, reason string) (*Request, error) {
	return w.decide(id, StatusRejected, user, reason)
}

// Cancel transitions a PENDING request to CANCELLED (no reviewing user).
func (w *Workflow) Cancel(id string) (*Request, error) {
	return w.decide(id, StatusCancelled, "", "")
}

func (w *Workflow) decide(id string, status Status, user, reason string) (*Request, error) {
	w.mu.Lock()
	req, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if w.expireLocked(req) {
		cp := *req
		w.mu.Unlock()
		w.finish(cp)
		return nil, ErrNotPending
	}
	if req.Status != StatusPending {
		w.mu.Unlock()
		return nil, ErrNotPending
	}

	now := w.ctx.Clock.Now()
	req.Status = status
	req.DecisionAt = &now
	req.DecisionUser = user
	req.DecisionReason = reason
	cp := *req
	w.mu.Unlock()

	w.finish(cp)
	return &cp, nil
}

// expireLocked marks req EXPIRED if its expiry has passed. Caller must
// hold w.mu. Returns true exactly once per request, the moment it
// transitions — callers use this to invoke the callback/sync/notify
// side effects outside the lock.
func (w *Workflow) expireLocked(req *Request) bool {
	if !req.isExpired(w.ctx.Clock.Now()) {
		return false
	}
	now := w.ctx.Clock.Now()
	req.Status = StatusExpired
	req.DecisionAt = &now
	return true
}

// finish runs the side effects of a terminal transition: invoke the
// callback exactly once, mark the linked notification ACTIONED, sync
// the final state. Must be called with the lock released.
func (w *Workflow) finish(req Request) {
	if req.callback != nil {
		req.callback(Outcome{
			Status:         req.Status,
			DecidedBy:      req.DecisionUser,
			DecisionReason: req.DecisionReason,
		})
	}
	w.markNotification(req)
	w.publishDecided(req)
	w.sync.UpdateApproval(req)
}

// markNotification reflects a terminal decision onto the linked
// notification: approve/reject/cancel go through TakeAction so the
// allowed-actions gate still applies; an expiry sweep has no human
// action behind it, so it updates status directly.
func (w *Workflow) markNotification(req Request) {
	if req.NotificationID == "" {
		return
	}
	var action string
	switch req.Status {
	case StatusApproved:
		action = "approve"
	case StatusRejected:
		action = "reject"
	case StatusCancelled:
		action = "cancel"
	case StatusExpired:
		if err := w.notify.UpdateStatus(req.NotificationID, notification.StatusExpired); err != nil {
			w.ctx.Logger.Warn("approval: mark notification expired", "id", req.NotificationID, "error", err)
		}
		return
	default:
		return
	}
	if err := w.notify.TakeAction(req.NotificationID, action); err != nil {
		w.ctx.Logger.Warn("approval: mark notification actioned", "id", req.NotificationID, "action", action, "error", err)
	}
}

func (w *Workflow) publishRequested(req Request) {
	if w.ctx.Bus == nil {
		return
	}
	w.ctx.Bus.Publish(events.NewTypedEventWithExperiment(events.SourceApproval, events.ApprovalRequestedPayload{
		RequestID: req.ID,
		Category:  req.Category,
		Action:    req.Action,
		Context:   req.Context,
		Requester: req.TargetUser,
	}, ""))
}

func (w *Workflow) publishDecided(req Request) {
	if w.ctx.Bus == nil {
		return
	}
	var outcome events.ApprovalOutcome
	switch req.Status {
	case StatusApproved:
		outcome = events.ApprovalOutcomeApproved
	case StatusRejected:
		outcome = events.ApprovalOutcomeRejected
	case StatusExpired:
		outcome = events.ApprovalOutcomeExpired
	case StatusCancelled:
		outcome = events.ApprovalOutcomeCancelled
	}
	w.ctx.Bus.Publish(events.NewTypedEvent(events.SourceApproval, events.ApprovalDecidedPayload{
		RequestID: req.ID,
		Outcome:   outcome,
		DecidedBy: req.DecisionUser,
	}))
}

// Sweep applies the expiry check to every PENDING request. Called by
// the housekeeping cron tick (spec.md §4.4: "periodically by the
// facade's housekeeping tick").
func (w *Workflow) Sweep() {
	w.List(Filter{Status: StatusPending})
}

// StartHousekeeping begins a periodic sweep on the given cron schedule
// (e.g. "@every 30s"), grounded on the teacher's own robfig/cron usage
// in internal/scheduler/cron.go and the Start/Stop lifecycle of
// internal/heartbeat.Writer.
func (w *Workflow) StartHousekeeping(schedule string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return nil
	}
	c := cron.New()
	id, err := c.AddFunc(schedule, w.Sweep)
	if err != nil {
		return fmt.Errorf("approval: schedule housekeeping: %w", err)
	}
	c.Start()
	w.cron = c
	w.cronJob = id
	return nil
}

// StopHousekeeping halts the periodic sweep.
func (w *Workflow) StopHousekeeping() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron == nil {
		return
	}
	w.cron.Stop()
	w.cron = nil
}

// RestorePending asks the Sync Bridge for every PENDING request still
// on file, rebuilds them, re-attaches cb as their callback (the
// dispatcher re-creates this from the action id — the original
// execute_fn closure never survives a restart; see spec.md §3's
// Non-goal on exactly-once execution across restarts), and immediately
// applies the expiry sweep.
func (w *Workflow) RestorePending(cb func(req *Request) Callback) {
	restored := w.sync.PendingApprovals()
	if len(restored) == 0 {
		return
	}

	w.mu.Lock()
	for i := range restored {
		req := restored[i]
		req.callback = cb(&req)
		w.requests[req.ID] = &req
	}
	w.mu.Unlock()

	w.Sweep()
}
