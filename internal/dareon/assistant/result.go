package assistant

import "github.com/dareon-io/dareon2/internal/dareon/files"

// Result is the payload an intent produces. The concrete types below are
// the closed set of results; each serialises to the JSON object clients
// receive under data.result.
type Result interface {
	Summary() string
}

// FilesResult carries a file listing. Files is never nil so it encodes as [].
type FilesResult struct {
	Message string        `json:"message"`
	Files   []files.Entry `json:"files"`
}

func (r FilesResult) Summary() string { return r.Message }

// ProviderOutcome is the sync status of one email provider.
type ProviderOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncResult aggregates per-provider email sync outcomes keyed by provider.
type SyncResult struct {
	Message string                     `json:"message"`
	Results map[string]ProviderOutcome `json:"results"`
}

func (r SyncResult) Summary() string { return r.Message }

// CalendarResult reports a calendar update.
type CalendarResult struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r CalendarResult) Summary() string { return r.Message }

// StatsResult wraps the file statistics.
type StatsResult struct {
	Message string      `json:"message"`
	Stats   files.Stats `json:"stats"`
}

func (r StatsResult) Summary() string { return r.Message }
