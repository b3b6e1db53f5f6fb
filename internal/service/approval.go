package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cvotel "github.com/convoke-ai/convoke/internal/adapter/otel"
	"github.com/convoke-ai/convoke/internal/domain"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/broadcast"
	"github.com/convoke-ai/convoke/internal/port/database"
	"github.com/convoke-ai/convoke/internal/port/notifier"
)

// TrustAssessor produces an automated verdict for an approval request.
// Implemented by ConsensusService.
type TrustAssessor interface {
	AssessTrust(ctx context.Context, description string, tier risk.Tier) (*approval.TrustAssessment, error)
}

// CommandExecutor runs an approved command payload. Optional; when nil,
// approved commands are only recorded, never executed.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (output string, err error)
}

// ApprovalService manages the lifecycle of approval requests: creation
// with trust assessment, human decisions, and expiry sweeping.
type ApprovalService struct {
	store      database.ApprovalStore
	trust      TrustAssessor
	notify     notifier.Notifier
	hub        broadcast.Broadcaster
	executor   CommandExecutor
	defaultTTL time.Duration
	commandTTL time.Duration
	now        func() time.Time // for testing
	log        *slog.Logger
}

// NewApprovalService creates an ApprovalService. trust, notify and hub
// may each be nil.
func NewApprovalService(store database.ApprovalStore, trust TrustAssessor, notify notifier.Notifier, hub broadcast.Broadcaster, defaultTTL, commandTTL time.Duration, log *slog.Logger) *ApprovalService {
	if defaultTTL <= 0 {
		defaultTTL = approval.DefaultTTL
	}
	if commandTTL <= 0 {
		commandTTL = approval.SystemCommandTTL
	}
	return &ApprovalService{
		store:      store,
		trust:      trust,
		notify:     notify,
		hub:        hub,
		defaultTTL: defaultTTL,
		commandTTL: commandTTL,
		now:        time.Now,
		log:        log.With("component", "approval"),
	}
}

// SetExecutor attaches a command executor invoked when an
// execute_command approval is approved.
func (s *ApprovalService) SetExecutor(e CommandExecutor) {
	s.executor = e
}

// Create opens a new approval request. High and critical tier requests
// get an automated trust assessment attached; assessment failure is
// logged, never fatal.
func (s *ApprovalService) Create(ctx context.Context, req approval.CreateRequest) (*approval.Request, error) {
	if req.UserID == "" || req.ActionType == "" {
		return nil, errors.New("user_id and action_type are required")
	}

	now := s.now()
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.ttlFor(req.ActionType)
	}

	r := &approval.Request{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ResponderID: req.ResponderID,
		ActionType:  req.ActionType,
		Description: req.Description,
		Payload:     req.Payload,
		RiskTier:    req.RiskTier,
		Status:      approval.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if r.Payload == nil {
		r.Payload = json.RawMessage("{}")
	}

	if s.trust != nil && (r.RiskTier == risk.TierHigh || r.RiskTier == risk.TierCritical) {
		trust, err := s.trust.AssessTrust(ctx, r.Description, r.RiskTier)
		if err != nil {
			s.log.Warn("trust assessment failed", "approval", r.ID, "error", err)
		} else {
			r.Trust = trust
		}
	}

	if err := s.store.CreateApproval(ctx, r); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	s.log.Info("approval created", "approval", r.ID, "action", r.ActionType, "tier", r.RiskTier)
	s.announce(ctx, r, broadcast.EventApprovalRequested, "approval.requested",
		fmt.Sprintf("New %s approval: %s", r.RiskTier, r.Description))
	return r, nil
}

// Get returns an approval request by ID.
func (s *ApprovalService) Get(ctx context.Context, id string) (*approval.Request, error) {
	return s.store.GetApproval(ctx, id)
}

// Decide records a human decision on a pending request. A request owned
// by a different user is reported as not found, so callers cannot tell
// foreign approvals apart from missing ones. Deciding an
// already-expired pending request marks it expired and returns
// domain.ErrExpired. Concurrent decisions are serialized by the store's
// pending-only update; losers get domain.ErrInvalidState.
func (s *ApprovalService) Decide(ctx context.Context, id, userID string, approve bool, reason string) (*approval.Request, error) {
	ctx, span := cvotel.StartApprovalSpan(ctx, "decide", id)
	defer span.End()

	current, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && current.UserID != userID {
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	if current.Status != approval.StatusPending {
		return nil, fmt.Errorf("approval %s already %s: %w", id, current.Status, domain.ErrInvalidState)
	}

	now := s.now()
	if current.Expired(now) {
		expired, expErr := s.store.DecideApproval(ctx, id, approval.DecisionFields{
			Status:    approval.StatusExpired,
			DecidedAt: now,
			Reason:    approval.SweepReason,
		})
		if expErr != nil {
			s.log.Warn("lazy expiry failed", "approval", id, "error", expErr)
		} else {
			s.announce(ctx, expired, broadcast.EventApprovalExpired, "approval.expired",
				"Approval expired before decision")
		}
		return nil, fmt.Errorf("approval %s expired at %s: %w", id, current.ExpiresAt.Format(time.RFC3339), domain.ErrExpired)
	}

	status := approval.StatusRejected
	if approve {
		status = approval.StatusApproved
	}

	decided, err := s.store.DecideApproval(ctx, id, approval.DecisionFields{
		Status:    status,
		DecidedAt: now,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("approval decided", "approval", id, "status", status, "reason", reason)
	s.announce(ctx, decided, broadcast.EventApprovalDecided, "approval.decided",
		fmt.Sprintf("Approval %s: %s", status, decided.Description))

	if approve && decided.ActionType == approval.ActionExecuteCommand {
		s.runApprovedCommand(ctx, decided)
	}
	return decided, nil
}

// runApprovedCommand executes the command payload of an approved
// execute_command request, if an executor is configured.
func (s *ApprovalService) runApprovedCommand(ctx context.Context, r *approval.Request) {
	if s.executor == nil {
		s.log.Info("no executor configured, command not run", "approval", r.ID)
		return
	}

	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(r.Payload, &payload); err != nil || payload.Command == "" {
		s.log.Error("approved command payload unreadable", "approval", r.ID, "error", err)
		return
	}

	output, err := s.executor.Execute(ctx, payload.Command)
	if err != nil {
		s.log.Error("approved command failed", "approval", r.ID, "command", payload.Command, "error", err)
		return
	}
	s.log.Info("approved command executed", "approval", r.ID, "command", payload.Command,
		"output_len", len(output))
}

// ListPending returns pending requests, newest first.
func (s *ApprovalService) ListPending(ctx context.Context, limit int) ([]*approval.Request, error) {
	return s.store.ListApprovals(ctx, approval.ListFilter{
		Status: approval.StatusPending,
		Limit:  limit,
	})
}

// History returns requests matching the filter, newest first.
func (s *ApprovalService) History(ctx context.Context, filter approval.ListFilter) ([]*approval.Request, error) {
	return s.store.ListApprovals(ctx, filter)
}

// Stats returns aggregate approval counts.
func (s *ApprovalService) Stats(ctx context.Context) (*approval.Stats, error) {
	return s.store.ApprovalStats(ctx)
}

// SweepExpired transitions every overdue pending request to expired and
// returns how many were swept.
func (s *ApprovalService) SweepExpired(ctx context.Context) (int, error) {
	swept, err := s.store.SweepExpired(ctx, s.now(), approval.SweepReason)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}

	for _, r := range swept {
		s.log.Info("approval expired", "approval", r.ID, "action", r.ActionType)
		s.announce(ctx, r, broadcast.EventApprovalExpired, "approval.expired",
			fmt.Sprintf("Approval expired: %s", r.Description))
	}
	return len(swept), nil
}

// RunSweeper periodically sweeps expired approvals until ctx is done.
func (s *ApprovalService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepExpired(ctx); err != nil {
				s.log.Error("sweep failed", "error", err)
			} else if n > 0 {
				s.log.Info("sweep complete", "expired", n)
			}
		}
	}
}

// announce pushes an approval event to the websocket hub and the
// operator notifier. Both are best-effort.
func (s *ApprovalService) announce(ctx context.Context, r *approval.Request, eventType, source, message string) {
	if s.hub != nil {
		event := map[string]any{
			"approval_id":  r.ID,
			"user_id":      r.UserID,
			"responder_id": r.ResponderID,
			"action_type":  r.ActionType,
			"risk_tier":    string(r.RiskTier),
			"status":       string(r.Status),
			"reason":       r.DecisionReason,
			"expires_at":   r.ExpiresAt,
		}
		s.hub.BroadcastEvent(ctx, eventType, event)
	}

	if s.notify != nil {
		level := "info"
		if r.RiskTier == risk.TierHigh || r.RiskTier == risk.TierCritical {
			level = "warning"
		}
		err := s.notify.Send(ctx, notifier.Notification{
			Title:   "Approval " + string(r.Status),
			Message: message,
			Level:   level,
			Source:  source,
		})
		if err != nil {
			s.log.Debug("notify failed", "error", err)
		}
	}
}

// ttlFor returns the configured expiry window for an action type.
func (s *ApprovalService) ttlFor(actionType string) time.Duration {
	if actionType == approval.ActionExecuteCommand {
		return s.commandTTL
	}
	return s.defaultTTL
}
