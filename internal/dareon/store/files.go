package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dareon-io/dareon2/internal/dareon/files"
)

// RecordFile stores upload metadata. Re-recording a path replaces it.
func (s *Store) RecordFile(ctx context.Context, rec files.Record) error {
	_, err := s.exec(ctx, `
		INSERT INTO files (user_id, path, original_name, mime_type, size, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, path) DO UPDATE SET
			original_name = excluded.original_name,
			mime_type = excluded.mime_type,
			size = excluded.size,
			uploaded_at = excluded.uploaded_at
	`, rec.UserID, rec.Path, rec.OriginalName, rec.MimeType, rec.Size, ts(rec.UploadedAt))
	if err != nil {
		return fmt.Errorf("failed to record file: %w", err)
	}
	return nil
}

// FileMetadata returns the searchable metadata of every recorded upload of
// userID keyed by path.
func (s *Store) FileMetadata(ctx context.Context, userID string) (map[string]map[string]any, error) {
	rows, err := s.query(ctx,
		`SELECT path, original_name, mime_type, size, uploaded_at FROM files WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var rec files.Record
		var uploaded time.Time
		if err := rows.Scan(&rec.Path, &rec.OriginalName, &rec.MimeType, &rec.Size, &uploaded); err != nil {
			return nil, fmt.Errorf("failed to scan file metadata: %w", err)
		}
		rec.UploadedAt = uploaded
		out[rec.Path] = rec.Metadata()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file metadata: %w", err)
	}
	return out, nil
}
