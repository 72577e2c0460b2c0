package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/experiment"
)

// statusResponse is the `{success, message}` shape spec.md §6 names
// for every mutation-style RPC.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createExperimentRequest mirrors spec.md §6's CreateExperiment body.
type createExperimentRequest struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type createExperimentResponse struct {
	ID     string         `json:"id"`
	Status statusResponse `json:"status"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, createExperimentResponse{Status: statusResponse{Success: false, Message: "malformed request body"}})
		return
	}

	id, err := s.registry.Create(experiment.Definition{
		Name:        req.Name,
		Kind:        req.Kind,
		Description: req.Description,
		Parameters:  req.Parameters,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, createExperimentResponse{Status: statusResponse{Success: false, Message: err.Error()}})
		return
	}

	writeJSON(w, http.StatusOK, createExperimentResponse{ID: id, Status: statusResponse{Success: true}})
}

// startStopResponse is StartExperiment/StopExperiment's response,
// extended (beyond the bare `{success, message}`) with the policy
// outcome fields spec.md §7 requires distinguishing: prohibited vs.
// approval-requested.
type startStopResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	Prohibited        bool   `json:"prohibited,omitempty"`
	ApprovalRequested bool   `json:"approval_requested,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.registry.Start(id)
	if err != nil {
		writeJSON(w, http.StatusOK, startStopResponse{Success: false, Message: err.Error()})
		return
	}

	switch result.Outcome {
	case experiment.StartOutcomeProhibited:
		writeJSON(w, http.StatusOK, startStopResponse{Success: false, Prohibited: true, Message: result.Reason})
	case experiment.StartOutcomePending:
		writeJSON(w, http.StatusOK, startStopResponse{Success: true, ApprovalRequested: true, RequestID: result.RequestID, Message: result.Reason})
	default:
		writeJSON(w, http.StatusOK, startStopResponse{Success: true})
	}
}

func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Stop(id); err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

// experimentStatusResponse mirrors spec.md §6's ExperimentStatus shape.
type experimentStatusResponse struct {
	ID                      string                `json:"id"`
	Name                    string                `json:"name"`
	Kind                    string                `json:"kind"`
	State                   experiment.State      `json:"state"`
	StatusMessage           string                `json:"status_message,omitempty"`
	Metrics                 map[string]any        `json:"metrics"`
	StartTime               any                   `json:"start_time,omitempty"`
	LastUpdateTime          any                   `json:"last_update_time"`
	EstimatedCompletionTime any                   `json:"estimated_completion_time,omitempty"`
	Definition              experiment.Definition `json:"definition"`
}

func (s *Server) handleGetExperimentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.registry.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, statusResponse{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, experimentStatusResponse{
		ID:                      rec.ID,
		Name:                    rec.Name,
		Kind:                    rec.Kind,
		State:                   rec.State,
		StatusMessage:           rec.StatusMessage,
		Metrics:                 rec.Metrics,
		StartTime:               rec.StartTime,
		LastUpdateTime:          rec.LastUpdateTime,
		EstimatedCompletionTime: rec.EstimatedCompletionTime,
		Definition:              rec.Definition,
	})
}

// agentStatusResponse mirrors spec.md §6's GetAgentStatus shape.
type agentStatusResponse struct {
	AgentState        string  `json:"agent_state"`
	ActiveExperiments int     `json:"active_experiments"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryMB          float64 `json:"memory_mb"`
	LastUpdated       any     `json:"last_updated"`
}

func (s *Server) handleGetAgentStatus(w http.ResponseWriter, r *http.Request) {
	records := s.registry.List()

	active := 0
	for _, rec := range records {
		if rec.State == experiment.StateRunning {
			active++
		}
	}

	state := "IDLE"
	if active > 0 {
		state = "RUNNING_EXPERIMENTS"
	}
	if len(s.approvals.List(approval.Filter{Status: approval.StatusPending})) > 0 {
		state = "AWAITING_APPROVAL"
	}

	cpu, mem := s.sampler.Sample()
	writeJSON(w, http.StatusOK, agentStatusResponse{
		AgentState:        state,
		ActiveExperiments: active,
		CPUPercent:        cpu,
		MemoryMB:          mem,
		LastUpdated:       s.ctx.Clock.Now(),
	})
}

// handleStopAgent is the kill switch: force-transition every non-terminal
// experiment to STOPPED, sync, close the bridge, and shut down the
// dispatcher pool in the background — without making the caller wait
// for in-flight tasks to actually unwind, per spec.md §4.10.
func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	for _, rec := range s.registry.List() {
		if rec.State.Terminal() {
			continue
		}
		if err := s.registry.Stop(rec.ID); err != nil && !errors.Is(err, experiment.ErrAlreadyTerminal) {
			s.logger().Warn("stop_agent: failed to stop experiment", "id", rec.ID, "error", err)
		}
	}

	if s.bridge != nil {
		s.bridge.Close()
	}
	go s.dispatcher.Stop()

	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

// approveDecisionRequest mirrors spec.md §6's ApproveDecision body.
type approveDecisionRequest struct {
	Approved bool   `json:"approved"`
	UserID   string `json:"user_id"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleApproveDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req approveDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Success: false, Message: "malformed request body"})
		return
	}

	var err error
	if req.Approved {
		_, err = s.approvals.Approve(id, req.UserID, req.Reason)
	} else {
		_, err = s.approvals.Reject(id, req.UserID, req.Reason)
	}
	if err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}
