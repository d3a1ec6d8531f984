package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxUploadSize caps a single uploaded file.
	MaxUploadSize = 100 * 1024 * 1024
	// MaxFilesPerUpload caps the number of files in one upload request.
	MaxFilesPerUpload = 10
)

var (
	ErrFileTooLarge    = errors.New("files: file exceeds maximum upload size")
	ErrUnsupportedType = errors.New("files: unsupported file type")
)

var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true,
	"text/csv":   true,
}

// AllowedType reports whether mimeType may be uploaded. Parameters such as
// "; charset=utf-8" are ignored.
func AllowedType(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	return allowedTypes[strings.ToLower(strings.TrimSpace(base))]
}

// Upload is one file received from a client.
type Upload struct {
	OriginalName string
	MimeType     string
	Body         io.Reader
}

// Record is what the metadata index keeps for an uploaded file.
type Record struct {
	UserID       string
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
	UploadedAt   time.Time
}

// Metadata returns the searchable metadata of the record.
func (r Record) Metadata() map[string]any {
	return map[string]any{
		"originalName": r.OriginalName,
		"mimeType":     r.MimeType,
		"size":         r.Size,
		"uploadDate":   r.UploadedAt.UTC().Format(time.RFC3339),
	}
}

// UsageRecorder persists upload side effects: the metadata record and the
// user's storage counters.
type UsageRecorder interface {
	RecordFile(ctx context.Context, rec Record) error
	AddStorageUsage(ctx context.Context, userID string, bytes int64, files int) error
}

// Save stores up under a generated name that keeps the original extension.
// Partial files are removed when the body exceeds MaxUploadSize. Once the
// metadata record is written the upload counts as stored, even if the
// storage counters could not be bumped.
func (s *Service) Save(ctx context.Context, userID string, up Upload) (Entry, error) {
	if !AllowedType(up.MimeType) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnsupportedType, up.MimeType)
	}
	dir, err := s.ensureDir(userID)
	if err != nil {
		return Entry{}, err
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(up.OriginalName)))
	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Entry{}, fmt.Errorf("files: create %s: %w", name, err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(up.Body, MaxUploadSize+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		os.Remove(path)
		return Entry{}, fmt.Errorf("files: write %s: %w", name, copyErr)
	case closeErr != nil:
		os.Remove(path)
		return Entry{}, fmt.Errorf("files: close %s: %w", name, closeErr)
	case n > MaxUploadSize:
		os.Remove(path)
		return Entry{}, ErrFileTooLarge
	}

	rec := Record{
		UserID:       userID,
		Path:         name,
		OriginalName: filepath.Base(up.OriginalName),
		MimeType:     up.MimeType,
		Size:         n,
		UploadedAt:   time.Now().UTC(),
	}
	if s.usage != nil {
		if err := s.usage.RecordFile(ctx, rec); err != nil {
			os.Remove(path)
			return Entry{}, fmt.Errorf("files: record upload: %w", err)
		}
		// File and record are committed; only the counters lag.
		if err := s.usage.AddStorageUsage(ctx, userID, n, 1); err != nil {
			slog.WarnContext(ctx, "files: storage usage not updated",
				"user_id", userID, "file", name, "bytes", n, "err", err)
		}
	}

	return Entry{
		Name:         name,
		Path:         name,
		Size:         n,
		Type:         strings.TrimPrefix(ext, "."),
		ModifiedDate: rec.UploadedAt,
		Metadata:     rec.Metadata(),
	}, nil
}
