package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/convoke-ai/convoke/internal/domain"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
	"github.com/convoke-ai/convoke/internal/domain/intent"
	"github.com/convoke-ai/convoke/internal/port/generation"
)

// memStore is an in-memory ApprovalStore + SessionStore for tests. The
// decide path mirrors the SQL store's pending-only update.
type memStore struct {
	mu        sync.Mutex
	approvals map[string]*approval.Request
	sessions  map[string]*conversation.State
}

func newMemStore() *memStore {
	return &memStore{
		approvals: make(map[string]*approval.Request),
		sessions:  make(map[string]*conversation.State),
	}
}

func (m *memStore) CreateApproval(_ context.Context, req *approval.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.approvals[req.ID] = &cp
	return nil
}

func (m *memStore) GetApproval(_ context.Context, id string) (*approval.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.approvals[id]
	if !ok {
		return nil, fmt.Errorf("get approval %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) DecideApproval(_ context.Context, id string, fields approval.DecisionFields) (*approval.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.approvals[id]
	if !ok {
		return nil, fmt.Errorf("decide approval %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != approval.StatusPending {
		return nil, fmt.Errorf("decide approval %s: status is %s: %w", id, r.Status, domain.ErrInvalidState)
	}
	r.Status = fields.Status
	decidedAt := fields.DecidedAt
	r.DecidedAt = &decidedAt
	r.DecisionReason = fields.Reason
	cp := *r
	return &cp, nil
}

func (m *memStore) ListApprovals(_ context.Context, filter approval.ListFilter) ([]*approval.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*approval.Request
	for _, r := range m.approvals {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ResponderID != "" && r.ResponderID != filter.ResponderID {
			continue
		}
		if filter.ActionType != "" && r.ActionType != filter.ActionType {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) SweepExpired(_ context.Context, now time.Time, reason string) ([]*approval.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var swept []*approval.Request
	for _, r := range m.approvals {
		if r.Status == approval.StatusPending && !r.ExpiresAt.After(now) {
			r.Status = approval.StatusExpired
			decidedAt := now
			r.DecidedAt = &decidedAt
			r.DecisionReason = reason
			cp := *r
			swept = append(swept, &cp)
		}
	}
	return swept, nil
}

func (m *memStore) ApprovalStats(_ context.Context) (*approval.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &approval.Stats{
		ByStatus:    make(map[string]int),
		ByResponder: make(map[string]int),
		ByRiskTier:  make(map[string]int),
		PeriodDays:  30,
	}
	for _, r := range m.approvals {
		stats.Total++
		stats.ByStatus[string(r.Status)]++
		stats.ByResponder[r.ResponderID]++
		stats.ByRiskTier[string(r.RiskTier)]++
		if r.Status == approval.StatusPending {
			stats.Pending++
		}
	}
	return stats, nil
}

func (m *memStore) GetSession(_ context.Context, sessionID string) (*conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", sessionID, domain.ErrNotFound)
	}
	return s, nil
}

func (m *memStore) PutSession(_ context.Context, state *conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.SessionID] = state
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

// fixedSource is a generation.Source returning a canned response. It
// records the prompts and modes it was called with.
type fixedSource struct {
	name   string
	weight float64
	reply  string
	err    error

	mu      sync.Mutex
	prompts []string
	modes   []string
}

func (s *fixedSource) Name() string    { return s.name }
func (s *fixedSource) Weight() float64 { return s.weight }
func (s *fixedSource) Generate(_ context.Context, messages []generation.Message, mode string) (string, error) {
	s.mu.Lock()
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	s.modes = append(s.modes, mode)
	s.mu.Unlock()
	return s.reply, s.err
}

func (s *fixedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modes)
}

func (s *fixedSource) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// fixedClassifier returns a canned classification.
type fixedClassifier struct {
	label      string
	confidence float64
	err        error
}

func (c *fixedClassifier) Classify(_ context.Context, _ string, _ []string) (*intent.Classification, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &intent.Classification{Label: c.label, Confidence: c.confidence}, nil
}

// fixedResponder returns a canned responder result.
type fixedResponder struct {
	id     string
	result *conversation.ResponderResult
	err    error
}

func (r *fixedResponder) ID() string { return r.id }
func (r *fixedResponder) Respond(_ context.Context, _ *conversation.State) (*conversation.ResponderResult, error) {
	return r.result, r.err
}

// recordingHub captures broadcast events.
type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *recordingHub) has(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == eventType {
			return true
		}
	}
	return false
}
