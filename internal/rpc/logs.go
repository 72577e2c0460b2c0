package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/aegis-agent/aegis/internal/events"
)

// logEntry mirrors spec.md §6's streamed LogEntry shape.
type logEntry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Level        events.LogLevel `json:"level"`
	Message      string          `json:"message"`
	ExperimentID string          `json:"experiment_id,omitempty"`
	Source       string          `json:"source"`
}

var levelRank = map[events.LogLevel]int{
	events.LogLevelDebug: 0,
	events.LogLevelInfo:  1,
	events.LogLevelWarn:  2,
	events.LogLevelError: 3,
}

// handleGetLogsWS implements GetLogs's server-streaming RPC as a
// websocket feed: every EventLogEntry on the bus, filtered by the
// query's experiment_id and min_level, is pushed to the client as it
// is published. Modeled on internal/gateway/ws.Hub's bus-to-client
// bridging, narrowed to one event type and one outbound direction.
func (s *Server) handleGetLogsWS(w http.ResponseWriter, r *http.Request) {
	experimentFilter := r.URL.Query().Get("experiment_id")
	minLevel := events.LogLevel(r.URL.Query().Get("min_level"))
	minRank, ok := levelRank[minLevel]
	if !ok {
		minRank = 0
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger().Error("logs ws accept", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	bus := s.bus()
	if bus == nil {
		return
	}

	ch, unsubscribe := bus.SubscribeChan(64, events.EventLogEntry)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			payload, ok := events.ExtractPayload[events.LogEntryPayload](e)
			if !ok {
				continue
			}
			if experimentFilter != "" && e.ExperimentID != experimentFilter {
				continue
			}
			if levelRank[payload.Level] < minRank {
				continue
			}

			entry := logEntry{
				Timestamp:    e.Timestamp,
				Level:        payload.Level,
				Message:      payload.Message,
				ExperimentID: e.ExperimentID,
				Source:       string(e.Source),
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
