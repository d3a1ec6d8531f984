package store

import (
	"context"
	"fmt"
	"time"
)

// Command outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// CommandRecord is one assistant command as issued by a user.
type CommandRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Command   string    `json:"command"`
	Intent    string    `json:"intent,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	TraceID   string    `json:"traceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MaxHistoryLimit bounds ListCommands.
const MaxHistoryLimit = 100

// AppendCommand records a command in the user's history.
func (s *Store) AppendCommand(ctx context.Context, rec CommandRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO command_history (user_id, command, intent, outcome, error_message, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.UserID, rec.Command, rec.Intent, rec.Outcome, rec.Error, rec.TraceID, ts(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append command history: %w", err)
	}
	return nil
}

// ListCommands returns the user's most recent commands, newest first.
// limit is clamped to [1, MaxHistoryLimit].
func (s *Store) ListCommands(ctx context.Context, userID string, limit int) ([]CommandRecord, error) {
	limit = min(max(limit, 1), MaxHistoryLimit)
	rows, err := s.query(ctx, `
		SELECT id, user_id, command, intent, outcome, error_message, trace_id, created_at
		FROM command_history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query command history: %w", err)
	}
	defer rows.Close()

	out := []CommandRecord{}
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Command, &r.Intent, &r.Outcome, &r.Error, &r.TraceID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command history: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating command history: %w", err)
	}
	return out, nil
}
