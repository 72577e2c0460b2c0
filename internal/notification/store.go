package notification

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/ids"
)

var (
	// ErrNotFound is returned when a notification id has no record.
	ErrNotFound = errors.New("notification: not found")
	// ErrActionNotAllowed is returned by TakeAction for a refused action.
	ErrActionNotAllowed = errors.New("notification: action not allowed")
)

// Syncer is the narrow slice of the Sync Bridge the store needs. Declaring
// it here (rather than importing internal/sync) keeps the dependency
// pointing the right way: sync depends on notification, not vice versa.
type Syncer interface {
	SyncNotification(n Notification)
	UpdateNotification(n Notification)
	// RestoreNotifications is called once on cold start to rebuild
	// whatever the remote store still has on file.
	RestoreNotifications() []Notification
}

type noopSyncer struct{}

func (noopSyncer) SyncNotification(Notification)          {}
func (noopSyncer) UpdateNotification(Notification)        {}
func (noopSyncer) RestoreNotifications() []Notification   { return nil }

// Filter narrows a List query.
type Filter struct {
	TargetUser string
	Status     Status
	Type       Type
}

// Store holds every notification created by the governance layer.
type Store struct {
	mu    sync.Mutex
	items map[string]*Notification
	ctx   *corectx.Context
	sync  Syncer
}

// New constructs an empty notification store. A nil syncer is replaced
// with a no-op (matches the bridge's own disabled-mode behavior).
func New(ctx *corectx.Context, syncer Syncer) *Store {
	if syncer == nil {
		syncer = noopSyncer{}
	}
	return &Store{
		items: make(map[string]*Notification),
		ctx:   ctx,
		sync:  syncer,
	}
}

// Restore seeds the store from the Sync Bridge's cold-start restore, if
// it has anything on file. Call once, before serving traffic.
func (s *Store) Restore() {
	for _, n := range s.sync.RestoreNotifications() {
		cp := n
		s.mu.Lock()
		s.items[cp.ID] = &cp
		s.mu.Unlock()
	}
}

// Create stores a new notification and syncs it outbound.
func (s *Store) Create(n Notification) *Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = ids.New("notif")
	n.CreatedAt = s.ctx.Clock.Now()
	if n.Status == "" {
		n.Status = StatusPending
	}
	s.items[n.ID] = &n

	s.publish(n)
	s.sync.SyncNotification(n)
	return &n
}

// Get returns the notification by id.
func (s *Store) Get(id string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *n
	return &cp, nil
}

// List returns notifications matching filter, newest first.
func (s *Store) List(filter Filter) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if filter.TargetUser != "" && n.TargetUser != filter.TargetUser {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus transitions a notification's status (e.g. DELIVERED, READ,
// EXPIRED) and syncs the change.
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	n, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.Status = status
	if status == StatusRead && n.ReadAt == nil {
		now := s.ctx.Clock.Now()
		n.ReadAt = &now
	}
	cp := *n
	s.mu.Unlock()

	s.sync.UpdateNotification(cp)
	return nil
}

// TakeAction records a human decision on an action_required notification.
// Per spec.md §4.3: requires action_required true, status not EXPIRED, and
// action in the allowed set; otherwise refuses with a logged warning.
func (s *Store) TakeAction(id, action string) error {
	s.mu.Lock()
	n, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !n.ActionRequired || n.Status == StatusExpired || !allowed(n.AllowedActions, action) {
		s.mu.Unlock()
		s.ctx.Logger.Warn("notification: action refused",
			"id", id, "action", action, "action_required", n.ActionRequired, "status", n.Status)
		return ErrActionNotAllowed
	}

	now := s.ctx.Clock.Now()
	n.Status = StatusActioned
	n.ActionTaken = action
	n.ActionAt = &now
	cp := *n
	s.mu.Unlock()

	s.sync.UpdateNotification(cp)
	return nil
}

func (s *Store) publish(n Notification) {
	if s.ctx.Bus == nil {
		return
	}
	s.ctx.Bus.Publish(events.NewTypedEvent(events.SourceNotify, events.NotificationPayload{
		NotificationID: n.ID,
		Priority:       string(n.Priority),
		Category:       string(n.Type),
		Status:         n.Status,
		Message:        n.Message,
	}))
}

func allowed(list []string, action string) bool {
	for _, a := range list {
		if a == action {
			return true
		}
	}
	return false
}
