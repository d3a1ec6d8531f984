// Package files implements the per-user local file service: recursive
// listing of a user's storage directory, sorting, searching, statistics and
// uploads.
//
// Each user owns the directory <root>/<userID>. Paths returned to callers are
// relative to that directory; the server's filesystem layout never leaves
// this package.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SortKey names a supported ordering.
type SortKey string

const (
	SortByType SortKey = "type"
	SortByDate SortKey = "date"
	SortBySize SortKey = "size"
	SortByName SortKey = "name"
)

var (
	// ErrInvalidSortKey is returned for keys outside {type, date, size, name}.
	ErrInvalidSortKey = errors.New("files: invalid sort key")
	// ErrInvalidUser is returned when a user id cannot name a directory.
	ErrInvalidUser = errors.New("files: invalid user id")
)

// ParseSortKey validates a raw sort key.
func ParseSortKey(raw string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(raw))); k {
	case SortByType, SortByDate, SortBySize, SortByName:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, raw)
}

// Entry describes one stored file.
type Entry struct {
	Name         string         `json:"name"`
	Path         string         `json:"path"`
	Size         int64          `json:"size"`
	Type         string         `json:"type"`
	ModifiedDate time.Time      `json:"modifiedDate"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Stats aggregates a user's files.
type Stats struct {
	TotalFiles     int            `json:"totalFiles"`
	TotalSize      int64          `json:"totalSize"`
	TotalSizeHuman string         `json:"totalSizeHuman"`
	ByType         map[string]int `json:"byType"`
	ByDate         map[string]int `json:"byDate"`
	BySize         map[string]int `json:"bySize"`
}

// sizeBuckets are checked in order; the first bucket whose limit is not
// exceeded wins.
var sizeBuckets = []struct {
	name string
	max  int64
}{
	{"tiny", 100 * 1024},
	{"small", 1024 * 1024},
	{"medium", 10 * 1024 * 1024},
	{"large", 100 * 1024 * 1024},
}

const hugeBucket = "huge"

// MetadataIndex supplies upload metadata keyed by path relative to the user
// directory. The store implements it.
type MetadataIndex interface {
	FileMetadata(ctx context.Context, userID string) (map[string]map[string]any, error)
}

// Service is the file collaborator used by the command executor and the
// /api/files routes. It is safe for concurrent use.
type Service struct {
	root  string
	index MetadataIndex
	usage UsageRecorder
}

// NewService returns a Service rooted at root. index and usage may be nil.
func NewService(root string, index MetadataIndex, usage UsageRecorder) *Service {
	return &Service{root: root, index: index, usage: usage}
}

// userDir resolves the storage directory of userID.
func (s *Service) userDir(userID string) (string, error) {
	if userID == "" || userID == "." || userID == ".." || strings.ContainsAny(userID, `/\`) {
		return "", ErrInvalidUser
	}
	return filepath.Join(s.root, userID), nil
}

// List walks the user's directory recursively. A user without a directory
// has no files.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Name:         d.Name(),
			Path:         filepath.ToSlash(rel),
			Size:         info.Size(),
			Type:         strings.TrimPrefix(filepath.Ext(d.Name()), "."),
			ModifiedDate: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("files: list %s: %w", userID, err)
	}

	if s.index != nil && len(entries) > 0 {
		meta, err := s.index.FileMetadata(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("files: load metadata: %w", err)
		}
		for i := range entries {
			entries[i].Metadata = meta[entries[i].Path]
		}
	}
	return entries, nil
}

// Sort lists the user's files ordered by key: type and name ascending, date
// and size descending. Ties keep traversal order.
func (s *Service) Sort(ctx context.Context, userID string, key SortKey) ([]Entry, error) {
	if _, err := ParseSortKey(string(key)); err != nil {
		return nil, err
	}
	entries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	SortEntries(entries, key)
	return entries, nil
}

// SortEntries orders entries in place. Unknown keys leave the slice as is.
func SortEntries(entries []Entry, key SortKey) {
	var cmp func(a, b Entry) int
	switch key {
	case SortByType:
		cmp = func(a, b Entry) int { return strings.Compare(a.Type, b.Type) }
	case SortByDate:
		cmp = func(a, b Entry) int { return b.ModifiedDate.Compare(a.ModifiedDate) }
	case SortBySize:
		cmp = func(a, b Entry) int {
			switch {
			case a.Size > b.Size:
				return -1
			case a.Size < b.Size:
				return 1
			}
			return 0
		}
	case SortByName:
		cmp = func(a, b Entry) int { return strings.Compare(a.Name, b.Name) }
	default:
		return
	}
	slices.SortStableFunc(entries, cmp)
}

// Search returns the files whose name or serialised metadata contains query,
// ignoring case. No match is an empty, non-nil slice.
func (s *Service) Search(ctx context.Context, userID, query string) ([]Entry, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	matches := []Entry{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), q) || metadataContains(e.Metadata, q) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

func metadataContains(meta map[string]any, lowerQuery string) bool {
	if len(meta) == 0 {
		return false
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), lowerQuery)
}

// Stats summarises the user's files.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(entries), nil
}

// Summarize computes Stats over entries. Files without an extension are
// counted under "unknown"; dates are UTC calendar days.
func Summarize(entries []Entry) Stats {
	st := Stats{
		ByType: map[string]int{},
		ByDate: map[string]int{},
		BySize: map[string]int{},
	}
	for _, e := range entries {
		st.TotalFiles++
		st.TotalSize += e.Size

		typ := e.Type
		if typ == "" {
			typ = "unknown"
		}
		st.ByType[typ]++
		st.ByDate[e.ModifiedDate.UTC().Format(time.DateOnly)]++
		st.BySize[sizeBucket(e.Size)]++
	}
	st.TotalSizeHuman = humanize.IBytes(uint64(max(st.TotalSize, 0)))
	return st
}

func sizeBucket(size int64) string {
	for _, b := range sizeBuckets {
		if size <= b.max {
			return b.name
		}
	}
	return hugeBucket
}

// ensureDir creates the user's directory.
func (s *Service) ensureDir(userID string) (string, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("files: create storage for %s: %w", userID, err)
	}
	return dir, nil
}
