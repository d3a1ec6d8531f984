package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Integration is a linked third-party account. Token columns hold
// ciphertext; sealing and opening happens in the integrations package.
type Integration struct {
	UserID       string
	Provider     string
	Connected    bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const integrationColumns = `user_id, provider, connected, access_token, refresh_token, expires_at, created_at, updated_at`

func scanIntegration(row rowScanner) (*Integration, error) {
	in := &Integration{}
	var expires sql.NullTime
	err := row.Scan(&in.UserID, &in.Provider, &in.Connected, &in.AccessToken, &in.RefreshToken,
		&expires, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}
	in.ExpiresAt = timePtr(expires)
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	return in, nil
}

// UpsertIntegration inserts or replaces the (user, provider) row.
func (s *Store) UpsertIntegration(ctx context.Context, in *Integration) error {
	now := ts(time.Now())
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	_, err := s.exec(ctx, `
		INSERT INTO integrations (`+integrationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			connected = excluded.connected,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, in.UserID, in.Provider, in.Connected, in.AccessToken, in.RefreshToken,
		nullTime(in.ExpiresAt), ts(in.CreatedAt), in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

// GetIntegration returns the row for (userID, provider), or ErrNotFound.
func (s *Store) GetIntegration(ctx context.Context, userID, provider string) (*Integration, error) {
	return scanIntegration(s.queryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE user_id = ? AND provider = ?`,
		userID, provider))
}

// ListIntegrations returns every integration row of userID.
func (s *Store) ListIntegrations(ctx context.Context, userID string) ([]*Integration, error) {
	rows, err := s.query(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE user_id = ? ORDER BY provider`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var out []*Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}
	return out, nil
}

// DeleteIntegration removes the (user, provider) row, or returns ErrNotFound.
func (s *Store) DeleteIntegration(ctx context.Context, userID, provider string) error {
	res, err := s.exec(ctx, `DELETE FROM integrations WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return expectOne(res)
}
