// Package assistant implements the natural-language command dispatcher: an
// ordered pattern table, a resolver that maps free text to an intent and its
// parameters, and an executor that runs the intent against the file service
// and the integration connection store.
//
// Detection is deterministic. No model is consulted; the first pattern that
// matches wins.
package assistant

import (
	"regexp"
	"strings"
)

// Intent identifies the action a command asks for.
type Intent string

const (
	IntentSortFiles      Intent = "sort-files"
	IntentSyncEmails     Intent = "sync-emails"
	IntentUpdateCalendar Intent = "update-calendar"
	IntentListFiles      Intent = "list-files"
	IntentSearchFiles    Intent = "search-files"
	IntentGetStats       Intent = "get-stats"
)

// Intents lists every intent in table order.
var Intents = []Intent{
	IntentSortFiles,
	IntentSyncEmails,
	IntentUpdateCalendar,
	IntentListFiles,
	IntentSearchFiles,
	IntentGetStats,
}

// Params holds the named arguments extracted from a command.
type Params map[string]string

// Parameter names and their defaults.
const (
	ParamSortBy   = "sortBy"
	ParamProvider = "provider"
	ParamSource   = "source"
	ParamQuery    = "query"

	ProviderAll    = "all"
	SourceLocal    = "local"
	SourceOneDrive = "onedrive"
)

// PatternEntry pairs an intent with the expressions that recognise it and the
// extractor that turns a match into Params. Extract receives the submatches
// of the pattern that fired and must return a fresh map.
type PatternEntry struct {
	Intent   Intent
	Patterns []*regexp.Regexp
	Extract  func(match []string) Params
}

// Table is an ordered pattern table. Order is significant: entries, and the
// patterns within an entry, are tried front to back.
type Table []PatternEntry

var defaultTable = Table{
	{
		Intent: IntentSortFiles,
		Patterns: compile(
			`sort (?:my )?files by (type|date|size|name)`,
			`organize (?:my )?files by (type|date|size|name)`,
		),
		Extract: func(m []string) Params {
			return Params{ParamSortBy: strings.ToLower(m[1])}
		},
	},
	{
		Intent: IntentSyncEmails,
		Patterns: compile(
			`sync (?:my )?(?:(outlook|gmail) )?emails?`,
			`update (?:my )?(?:(outlook|gmail) )?emails?`,
		),
		Extract: func(m []string) Params {
			provider := strings.ToLower(m[1])
			if provider == "" {
				provider = ProviderAll
			}
			return Params{ParamProvider: provider}
		},
	},
	{
		Intent: IntentUpdateCalendar,
		Patterns: compile(
			`update (?:my )?calendar`,
			`sync (?:my )?calendar`,
		),
		Extract: func([]string) Params { return Params{} },
	},
	{
		Intent: IntentListFiles,
		Patterns: compile(
			`show (?:my )?(onedrive )?files`,
			`list (?:my )?(onedrive )?files`,
		),
		Extract: func(m []string) Params {
			source := strings.ToLower(strings.TrimSpace(m[1]))
			if source == "" {
				source = SourceLocal
			}
			return Params{ParamSource: source}
		},
	},
	{
		Intent: IntentSearchFiles,
		Patterns: compile(
			`search (?:for )?(?:my )?files?(?: containing| with)? (.+)`,
			`find (?:my )?files?(?: containing| with)? (.+)`,
		),
		Extract: func(m []string) Params {
			return Params{ParamQuery: unquote(m[1])}
		},
	},
	{
		Intent: IntentGetStats,
		Patterns: compile(
			`show (?:my )?stats`,
			`get (?:my )?statistics`,
		),
		Extract: func([]string) Params { return Params{} },
	},
}

// DefaultTable returns the built-in pattern table. The returned slice shares
// its compiled expressions, which are safe for concurrent use, but is a copy
// so callers cannot reorder the package's table.
func DefaultTable() Table {
	return append(Table(nil), defaultTable...)
}

// compile builds case-insensitive, unanchored expressions.
func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// unquote strips one pair of matching enclosing quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

var suggestions = []string{
	"Sort my files by type",
	"Sync my Outlook emails",
	"Update my calendar",
	"Show my OneDrive files",
	`Search files containing "report"`,
	"Show my stats",
}

// Suggestions returns example commands shown to users. Each one resolves
// against the default table.
func Suggestions() []string {
	return append([]string(nil), suggestions...)
}
