package events

import (
	"log/slog"
	"testing"
	"time"
)

func TestBusHandler_PublishesLogEntry(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	ch, unsubscribe := bus.SubscribeChan(8, EventLogEntry)
	defer unsubscribe()

	handler := NewBusHandler(slog.NewTextHandler(discard{}, nil), bus, SourceRegistry)
	logger := slog.New(handler)
	logger.Info("experiment started", "experiment_id", "exp_1234")

	select {
	case e := <-ch:
		payload, ok := GetLogEntryPayload(e)
		if !ok {
			t.Fatal("expected a decodable LogEntryPayload")
		}
		if payload.Message != "experiment started" {
			t.Errorf("message = %q, want %q", payload.Message, "experiment started")
		}
		if payload.Level != LogLevelInfo {
			t.Errorf("level = %q, want info", payload.Level)
		}
		if e.ExperimentID != "exp_1234" {
			t.Errorf("experiment id = %q, want exp_1234", e.ExperimentID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log.entry event")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
