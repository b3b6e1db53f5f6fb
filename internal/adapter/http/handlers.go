package http

import (
	"net/http"

	"github.com/convoke-ai/convoke/internal/adapter/litellm"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/database"
	"github.com/convoke-ai/convoke/internal/port/messagequeue"
	"github.com/convoke-ai/convoke/internal/port/responder"
	"github.com/convoke-ai/convoke/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Pipeline   *service.Pipeline
	Approvals  *service.ApprovalService
	Responders *responder.Registry
	Sessions   database.SessionStore
	Store      database.Store
	Queue      messagequeue.Queue
	LiteLLM    *litellm.Client
}

// HandleChat runs one user message through the pipeline.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ChatRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.UserID, "user_id") || !requireField(w, req.Message, "message") {
		return
	}

	resp := h.Pipeline.Process(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// GetSession returns the stored conversation state for a session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.Sessions.GetSession(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteSession removes a stored session.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.DeleteSession(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListResponders returns the registered responder IDs.
func (h *Handlers) ListResponders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"responders": h.Responders.IDs()})
}

// ListApprovals returns approval requests, filtered by query parameters.
// Without a status filter it returns pending requests only.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	status := r.URL.Query().Get("status")

	if status == "" {
		pending, err := h.Approvals.ListPending(r.Context(), limit)
		if err != nil {
			writeDomainError(w, err, "approvals not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"approvals": pending})
		return
	}

	list, err := h.Approvals.History(r.Context(), approval.ListFilter{
		Status:      approval.Status(status),
		ResponderID: r.URL.Query().Get("responder_id"),
		ActionType:  r.URL.Query().Get("action_type"),
		RiskTier:    risk.Tier(r.URL.Query().Get("risk_tier")),
		Limit:       limit,
	})
	if err != nil {
		writeDomainError(w, err, "approvals not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": list})
}

// GetApproval returns one approval request by ID.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// ApproveRequest approves a pending approval request.
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// RejectRequest rejects a pending approval request.
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	body, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.UserID, "user_id") {
		return
	}

	decided, err := h.Approvals.Decide(r.Context(), urlParam(r, "id"), body.UserID, approve, body.Reason)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

// ExpireApprovals sweeps past-deadline pending approvals immediately,
// the same pass the background ticker runs.
func (h *Handlers) ExpireApprovals(w http.ResponseWriter, r *http.Request) {
	swept, err := h.Approvals.SweepExpired(r.Context())
	if err != nil {
		writeDomainError(w, err, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": swept})
}

// ApprovalStats returns aggregate approval counts.
func (h *Handlers) ApprovalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Approvals.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health reports the liveness of the service and its dependencies.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
		LiteLLM  string `json:"litellm"`
	}

	status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok", LiteLLM: "ok"}

	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
	}
	if h.Queue != nil && !h.Queue.IsConnected() {
		status.Status = "degraded"
		status.NATS = "disconnected"
	}
	if h.LiteLLM != nil {
		if ok, err := h.LiteLLM.Health(r.Context()); err != nil || !ok {
			status.Status = "degraded"
			status.LiteLLM = "unreachable"
		}
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
