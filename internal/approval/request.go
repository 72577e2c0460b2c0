// Package approval implements the Approval Workflow (C4): durable
// tracking of human decisions gating a governed action, with an expiry
// sweep and callback-driven resumption.
package approval

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a Request. Only PENDING is mutable;
// every other status is terminal and one-shot.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound   = errors.New("approval: request not found")
	ErrNotPending = errors.New("approval: request is not pending")
)

// Outcome describes how a Request left PENDING, passed to a Callback.
type Outcome struct {
	Status       Status
	DecidedBy    string
	DecisionReason string
}

// Callback is invoked exactly once when a Request leaves PENDING. The
// caller (typically the Autonomy Facade) owns what happens next — the
// Request itself never calls back into an execute_fn directly.
type Callback func(Outcome)

// Request is a durable record of a single human decision.
type Request struct {
	ID             string
	Title          string
	Description    string
	Category       string
	Action         string
	Context        map[string]any
	TargetUser     string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	Status         Status
	DecisionAt     *time.Time
	DecisionUser   string
	DecisionReason string
	NotificationID string

	// ContinuationRef is an opaque identifier sufficient for the Sync
	// Bridge to restore this request's callback on cold start (see
	// RestorePending). It is NOT the callback itself — callbacks are
	// re-attached in-process after restore, never serialized.
	ContinuationRef string

	callback Callback
}

func (r *Request) isExpired(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
