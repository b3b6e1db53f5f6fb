package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/convoke-ai/convoke/internal/domain"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/risk"
)

const approvalColumns = `id, user_id, responder_id, action_type, description, payload,
	risk_tier, status, trust, created_at, expires_at, decided_at, decision_reason`

// CreateApproval inserts a new approval request.
func (s *Store) CreateApproval(ctx context.Context, req *approval.Request) error {
	trustJSON, err := marshalTrust(req.Trust)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO approvals (id, user_id, responder_id, action_type, description, payload,
		                        risk_tier, status, trust, created_at, expires_at, decision_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.UserID, req.ResponderID, req.ActionType, req.Description, req.Payload,
		string(req.RiskTier), string(req.Status), trustJSON, req.CreatedAt, req.ExpiresAt,
		req.DecisionReason)
	if err != nil {
		return fmt.Errorf("create approval %s: %w", req.ID, err)
	}
	return nil
}

// GetApproval returns the approval request with the given ID.
func (s *Store) GetApproval(ctx context.Context, id string) (*approval.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)

	req, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get approval %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval %s: %w", id, err)
	}
	return req, nil
}

// DecideApproval transitions a pending approval to a terminal status.
// The WHERE status = 'pending' guard makes concurrent decisions race-safe:
// exactly one caller wins, the rest see ErrInvalidState.
func (s *Store) DecideApproval(ctx context.Context, id string, fields approval.DecisionFields) (*approval.Request, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE approvals
		 SET status = $2, decided_at = $3, decision_reason = $4
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+approvalColumns,
		id, string(fields.Status), fields.DecidedAt, fields.Reason)

	req, err := scanApproval(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decide approval %s: %w", id, err)
	}

	// No pending row was updated: distinguish missing from already decided.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM approvals WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decide approval %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("decide approval %s: %w", id, err)
	}
	return nil, fmt.Errorf("decide approval %s: status is %s: %w", id, status, domain.ErrInvalidState)
}

// ListApprovals returns approval requests matching the filter, newest first.
func (s *Store) ListApprovals(ctx context.Context, filter approval.ListFilter) ([]*approval.Request, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE 1=1`
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		query += " AND " + clause + "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		add("status = ", string(filter.Status))
	}
	if filter.ResponderID != "" {
		add("responder_id = ", filter.ResponderID)
	}
	if filter.ActionType != "" {
		add("action_type = ", filter.ActionType)
	}
	if filter.RiskTier != "" {
		add("risk_tier = ", string(filter.RiskTier))
	}
	if !filter.Since.IsZero() {
		add("created_at >= ", filter.Since)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*approval.Request
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("list approvals: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// SweepExpired marks every pending approval past its deadline as expired
// and returns the updated rows.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, reason string) ([]*approval.Request, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE approvals
		 SET status = 'expired', decided_at = $1, decision_reason = $2
		 WHERE status = 'pending' AND expires_at <= $1
		 RETURNING `+approvalColumns,
		now, reason)
	if err != nil {
		return nil, fmt.Errorf("sweep expired: %w", err)
	}
	defer rows.Close()

	var swept []*approval.Request
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("sweep expired: %w", err)
		}
		swept = append(swept, req)
	}
	return swept, rows.Err()
}

// ApprovalStats returns aggregate counts per status, responder and risk
// tier over the last 30 days, plus the mean time-to-decision.
func (s *Store) ApprovalStats(ctx context.Context) (*approval.Stats, error) {
	const periodDays = 30
	since := time.Now().AddDate(0, 0, -periodDays)

	stats := &approval.Stats{
		ByStatus:    make(map[string]int),
		ByResponder: make(map[string]int),
		ByRiskTier:  make(map[string]int),
		PeriodDays:  periodDays,
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, responder_id, risk_tier,
		        EXTRACT(EPOCH FROM (decided_at - created_at))
		 FROM approvals WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	defer rows.Close()

	var decisionSeconds float64
	var decided int
	for rows.Next() {
		var status, responderID, riskTier string
		var secs *float64
		if err := rows.Scan(&status, &responderID, &riskTier, &secs); err != nil {
			return nil, fmt.Errorf("approval stats: %w", err)
		}
		stats.Total++
		stats.ByStatus[status]++
		stats.ByResponder[responderID]++
		stats.ByRiskTier[riskTier]++
		if status == string(approval.StatusPending) {
			stats.Pending++
		}
		if secs != nil {
			decisionSeconds += *secs
			decided++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}

	if decided > 0 {
		stats.AvgDecisionHours = decisionSeconds / float64(decided) / 3600
	}
	return stats, nil
}

// scanApproval reads one approvals row from a pgx.Row or pgx.Rows.
func scanApproval(row pgx.Row) (*approval.Request, error) {
	var req approval.Request
	var riskTier, status string
	var trustJSON []byte

	err := row.Scan(&req.ID, &req.UserID, &req.ResponderID, &req.ActionType, &req.Description,
		&req.Payload, &riskTier, &status, &trustJSON, &req.CreatedAt, &req.ExpiresAt,
		&req.DecidedAt, &req.DecisionReason)
	if err != nil {
		return nil, err
	}

	req.RiskTier = risk.Tier(riskTier)
	req.Status = approval.Status(status)
	if len(trustJSON) > 0 {
		var trust approval.TrustAssessment
		if err := json.Unmarshal(trustJSON, &trust); err != nil {
			return nil, fmt.Errorf("decode trust: %w", err)
		}
		req.Trust = &trust
	}
	return &req, nil
}

func marshalTrust(t *approval.TrustAssessment) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}
