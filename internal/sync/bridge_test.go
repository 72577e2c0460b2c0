package sync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"filippo.io/age"
	dto "github.com/prometheus/client_model/go"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/experiment"
)

func newTestContext(bus *events.Bus) *corectx.Context {
	return &corectx.Context{
		Clock:  corectx.NewFakeClock(corectx.SystemClock{}.Now()),
		Logger: slog.Default(),
		Bus:    bus,
	}
}

func testClient(url string) *RemoteClient {
	return &RemoteClient{baseURL: url, http: http.DefaultClient}
}

func TestBridge_Disabled_NeverCallsRemote(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	disabled := false
	cfg := config.SyncConfig{Enabled: &disabled}
	b := New(nil, cfg, testClient(srv.URL), nil)
	defer b.Close()

	b.SyncExperiment(experiment.Record{ID: "exp-1"})
	if called {
		t.Fatal("expected no remote call while disabled")
	}
}

func TestBridge_SyncExperiment_PostsToRemote(t *testing.T) {
	var gotPath string
	var gotBody experiment.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := New(nil, config.SyncConfig{}, testClient(srv.URL), nil)
	defer b.Close()

	b.SyncExperiment(experiment.Record{ID: "exp-1", Name: "trial"})

	if gotPath != "/v1/experiments" {
		t.Fatalf("expected /v1/experiments, got %s", gotPath)
	}
	if gotBody.ID != "exp-1" {
		t.Fatalf("expected id exp-1, got %s", gotBody.ID)
	}
}

func TestBridge_RestoreExperiments_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]experiment.Record{{ID: "exp-restored"}})
	}))
	defer srv.Close()

	b := New(nil, config.SyncConfig{}, testClient(srv.URL), nil)
	defer b.Close()

	got := b.RestoreExperiments()
	if len(got) != 1 || got[0].ID != "exp-restored" {
		t.Fatalf("expected one restored experiment, got %v", got)
	}
}

func TestBridge_FailedSync_IncrementsCounterAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bus := events.NewBus(16)
	ch, unsub := bus.SubscribeChan(4, events.EventSyncFailed)
	defer unsub()

	before := testutilCounterValue("experiment")

	b := New(newTestContext(bus), config.SyncConfig{}, testClient(srv.URL), nil)
	defer b.Close()

	b.SyncExperiment(experiment.Record{ID: "exp-1"})

	select {
	case e := <-ch:
		payload, ok := events.ExtractPayload[events.SyncFailedPayload](e)
		if !ok {
			t.Fatal("expected a SyncFailedPayload")
		}
		if payload.Kind != "experiment" {
			t.Fatalf("expected kind experiment, got %s", payload.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync failed event")
	}

	after := testutilCounterValue("experiment")
	if after <= before {
		t.Fatalf("expected FailuresTotal{experiment} to increment, before=%v after=%v", before, after)
	}
}

func TestBridge_ApprovalContinuationRef_RoundTripsWithoutIdentity(t *testing.T) {
	var gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req approval.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotRef = req.ContinuationRef
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := New(nil, config.SyncConfig{}, testClient(srv.URL), nil)
	defer b.Close()

	b.SyncApproval(approval.Request{ID: "req-1", ContinuationRef: "plain-ref"})

	if gotRef != "plain-ref" {
		t.Fatalf("expected ref to pass through unsealed, got %q", gotRef)
	}
}

func TestBridge_PendingApprovals_OpensSealedRefs(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	s := newSealer(identity)
	sealed, err := s.seal("secret-continuation")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "secret-continuation" {
		t.Fatal("expected sealing to change the ref")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]approval.Request{{ID: "req-1", ContinuationRef: sealed}})
	}))
	defer srv.Close()

	b := New(nil, config.SyncConfig{}, testClient(srv.URL), identity)
	defer b.Close()

	got := b.PendingApprovals()
	if len(got) != 1 {
		t.Fatalf("expected one pending approval, got %d", len(got))
	}
	if got[0].ContinuationRef != "secret-continuation" {
		t.Fatalf("expected opened ref, got %q", got[0].ContinuationRef)
	}
}

func TestBridge_SubscribesToLogAndMetricsEvents(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewBus(16)
	b := New(newTestContext(bus), config.SyncConfig{}, testClient(srv.URL), nil)
	defer b.Close()

	bus.Publish(events.NewTypedEventWithExperiment(events.SourceDispatch, events.LogEntryPayload{
		Level: events.LogLevelInfo, Message: "hello",
	}, "exp-1"))
	bus.Publish(events.NewTypedEventWithExperiment(events.SourceDispatch, events.MetricsUpdatedPayload{
		ProgressPercent: 42,
	}, "exp-1"))

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadInt32(&hits) >= 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for log+metrics passthrough, got %d hits", atomic.LoadInt32(&hits))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func testutilCounterValue(label string) float64 {
	metric, err := FailuresTotal.GetMetricWithLabelValues(label)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
