package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// EXPERIMENT LIFECYCLE EVENTS
// =============================================================================

type ExperimentLifecyclePayload struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (ExperimentLifecyclePayload) EventType() EventType { return EventExperimentCreated }

// =============================================================================
// METRICS EVENTS
// =============================================================================

type MetricsUpdatedPayload struct {
	ProgressPercent          float64 `json:"progress_percent"`
	ElapsedSeconds           float64 `json:"elapsed_seconds"`
	EstimatedRemainingSecond float64 `json:"estimated_remaining_seconds"`
	CPUPercent               float64 `json:"cpu_percent"`
	MemoryMB                 float64 `json:"memory_mb"`
	ErrorCount               int     `json:"error_count"`
}

func (MetricsUpdatedPayload) EventType() EventType { return EventMetricsUpdated }

// =============================================================================
// NOTIFICATION EVENTS
// =============================================================================

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusRead      NotificationStatus = "read"
	NotificationStatusActioned  NotificationStatus = "actioned"
	NotificationStatusExpired   NotificationStatus = "expired"
)

type NotificationPayload struct {
	NotificationID string              `json:"notification_id"`
	Priority       string              `json:"priority"`
	Category       string              `json:"category"`
	Status         NotificationStatus  `json:"status"`
	Message        string              `json:"message"`
}

func (NotificationPayload) EventType() EventType { return EventNotificationCreated }

// =============================================================================
// APPROVAL WORKFLOW EVENTS
// =============================================================================

type ApprovalRequestedPayload struct {
	RequestID string         `json:"request_id"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Context   map[string]any `json:"context,omitempty"`
	Requester string         `json:"requester"`
}

func (ApprovalRequestedPayload) EventType() EventType { return EventApprovalRequested }

type ApprovalOutcome string

const (
	ApprovalOutcomeApproved  ApprovalOutcome = "approved"
	ApprovalOutcomeRejected  ApprovalOutcome = "rejected"
	ApprovalOutcomeExpired   ApprovalOutcome = "expired"
	ApprovalOutcomeCancelled ApprovalOutcome = "cancelled"
)

type ApprovalDecidedPayload struct {
	RequestID string          `json:"request_id"`
	Outcome   ApprovalOutcome `json:"outcome"`
	DecidedBy string          `json:"decided_by,omitempty"`
}

func (ApprovalDecidedPayload) EventType() EventType { return EventApprovalDecided }

// =============================================================================
// SYNC BRIDGE EVENTS
// =============================================================================

type SyncFailedPayload struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (SyncFailedPayload) EventType() EventType { return EventSyncFailed }

// =============================================================================
// LOG STREAM EVENTS
// =============================================================================

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type LogEntryPayload struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

func (LogEntryPayload) EventType() EventType { return EventLogEntry }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithExperiment(source EventSource, payload EventPayload, experimentID string) Event {
	return Event{
		ID:           generateEventID(),
		ExperimentID: experimentID,
		Type:         payload.EventType(),
		Timestamp:    time.Now(),
		Source:       source,
		Payload:      toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetExperimentLifecyclePayload(e Event) (ExperimentLifecyclePayload, bool) {
	return ExtractPayload[ExperimentLifecyclePayload](e)
}

func GetMetricsUpdatedPayload(e Event) (MetricsUpdatedPayload, bool) {
	return ExtractPayload[MetricsUpdatedPayload](e)
}

func GetNotificationPayload(e Event) (NotificationPayload, bool) {
	return ExtractPayload[NotificationPayload](e)
}

func GetApprovalRequestedPayload(e Event) (ApprovalRequestedPayload, bool) {
	return ExtractPayload[ApprovalRequestedPayload](e)
}

func GetApprovalDecidedPayload(e Event) (ApprovalDecidedPayload, bool) {
	return ExtractPayload[ApprovalDecidedPayload](e)
}

func GetSyncFailedPayload(e Event) (SyncFailedPayload, bool) {
	return ExtractPayload[SyncFailedPayload](e)
}

func GetLogEntryPayload(e Event) (LogEntryPayload, bool) {
	return ExtractPayload[LogEntryPayload](e)
}
