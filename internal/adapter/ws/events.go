package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// ApprovalEvent is broadcast when an approval request is created, decided
// or expired.
type ApprovalEvent struct {
	ApprovalID  string    `json:"approval_id"`
	UserID      string    `json:"user_id"`
	ResponderID string    `json:"responder_id"`
	ActionType  string    `json:"action_type"`
	Description string    `json:"description,omitempty"`
	RiskTier    string    `json:"risk_tier"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidationEvent is broadcast when a consensus validation run completes.
type ValidationEvent struct {
	SessionID   string  `json:"session_id"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Risk        string  `json:"risk"`
	Verdict     string  `json:"verdict"`
	SourceCount int     `json:"source_count"`
}

// PipelineEvent is broadcast when a pipeline run finalizes.
type PipelineEvent struct {
	SessionID   string `json:"session_id"`
	ResponderID string `json:"responder_id"`
	Intent      string `json:"intent"`
	Degraded    bool   `json:"degraded"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
