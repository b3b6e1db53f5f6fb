package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/convoke-ai/convoke/internal/domain"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
)

// GetSession returns the conversation state for the session ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*conversation.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM sessions WHERE session_id = $1`, sessionID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var state conversation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// PutSession saves the conversation state, replacing any previous one.
func (s *Store) PutSession(ctx context.Context, state *conversation.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, user_id, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id) DO UPDATE SET state = $3, updated_at = now()`,
		state.SessionID, state.UserID, raw)
	if err != nil {
		return fmt.Errorf("put session %s: %w", state.SessionID, err)
	}
	return nil
}

// DeleteSession removes the conversation state for the session ID.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete session %s: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}
