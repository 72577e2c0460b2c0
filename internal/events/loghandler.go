package events

import (
	"context"
	"log/slog"
)

// BusHandler is an slog.Handler that republishes every record onto the
// bus as a log.entry event, so the RPC Service's GetLogs stream
// (spec.md §4.10/§6) has logs to forward to an operator. Every record
// is also passed through to next, the real stderr/file handler — this
// is a tee, not a replacement. Grounded on the teacher's
// internal/callbacks.NewEventBusHandler, which bridges Eino callbacks
// onto the same bus; this bridges slog records instead.
type BusHandler struct {
	next   slog.Handler
	bus    *Bus
	source EventSource
}

// NewBusHandler wraps next so its records are also published to bus.
func NewBusHandler(next slog.Handler, bus *Bus, source EventSource) *BusHandler {
	return &BusHandler{next: next, bus: bus, source: source}
}

func (h *BusHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *BusHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.bus != nil {
		var experimentID string
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "experiment_id" {
				experimentID = a.Value.String()
			}
			return true
		})
		h.bus.Publish(NewTypedEventWithExperiment(h.source, LogEntryPayload{
			Level:   levelToLogLevel(r.Level),
			Message: r.Message,
		}, experimentID))
	}
	return h.next.Handle(ctx, r)
}

func (h *BusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BusHandler{next: h.next.WithAttrs(attrs), bus: h.bus, source: h.source}
}

func (h *BusHandler) WithGroup(name string) slog.Handler {
	return &BusHandler{next: h.next.WithGroup(name), bus: h.bus, source: h.source}
}

func levelToLogLevel(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return LogLevelDebug
	case l < slog.LevelWarn:
		return LogLevelInfo
	case l < slog.LevelError:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}
