// Package corectx holds the explicit, constructed-once context value
// threaded through every component, replacing module-level singletons.
package corectx

import (
	"log/slog"

	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/events"
)

// Context bundles the cross-cutting collaborators every component needs:
// a clock, a logger, the loaded config, and the event bus. It is built
// once in cmd/agentd's composition root and passed by parameter — no
// component reaches for a package-level global.
type Context struct {
	Clock  Clock
	Logger *slog.Logger
	Config *config.Config
	Bus    *events.Bus
}

// New constructs a Context wired to the real system clock.
func New(cfg *config.Config, logger *slog.Logger, bus *events.Bus) *Context {
	return &Context{
		Clock:  SystemClock{},
		Logger: logger,
		Config: cfg,
		Bus:    bus,
	}
}

// WithClock returns a shallow copy of ctx with its clock replaced, for
// tests that need deterministic time (e.g. approval expiry).
func (c *Context) WithClock(clock Clock) *Context {
	cp := *c
	cp.Clock = clock
	return &cp
}
