// Package notification implements the Notification Store (C3): the
// shared, user-visible sink every other governance component writes
// through.
package notification

import (
	"time"

	"github.com/aegis-agent/aegis/internal/events"
)

// Type classifies what kind of thing a notification is about.
type Type string

const (
	TypeInfo             Type = "info"
	TypeWarning          Type = "warning"
	TypeError            Type = "error"
	TypeApprovalRequest  Type = "approval_request"
	TypeStatusUpdate     Type = "status_update"
)

// Priority ranks how urgently a notification needs a human's attention.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status is re-exported from events so callers compare against one type
// regardless of whether they reached it via the bus or the store.
type Status = events.NotificationStatus

const (
	StatusPending   = events.NotificationStatusPending
	StatusDelivered = events.NotificationStatusDelivered
	StatusRead      = events.NotificationStatusRead
	StatusActioned  = events.NotificationStatusActioned
	StatusExpired   = events.NotificationStatusExpired
)

// Notification is a user-visible record of something the governance layer
// wants a human to know about or act on.
type Notification struct {
	ID               string
	Title            string
	Message          string
	Type             Type
	Priority         Priority
	TargetUser       string
	RelatedEntityID  string
	RelatedEntityKind string
	ActionRequired   bool
	AllowedActions   []string
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	Status           Status
	ReadAt           *time.Time
	ActionTaken      string
	ActionAt         *time.Time
}
