package assistant

import "strings"

// Resolution is a command mapped to an intent.
type Resolution struct {
	Intent Intent `json:"intent"`
	Params Params `json:"params"`
	Raw    string `json:"raw"`
}

// Resolver maps free text to a Resolution. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	table Table
}

// NewResolver returns a Resolver over table. A nil table means the default.
func NewResolver(table Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	return &Resolver{table: table}
}

// Resolve returns the first entry whose pattern matches text. Blank input is
// ErrEmptyCommand; input no pattern matches is ErrUnrecognizedCommand.
func (r *Resolver) Resolve(text string) (Resolution, error) {
	if strings.TrimSpace(text) == "" {
		return Resolution{}, ErrEmptyCommand
	}
	for _, entry := range r.table {
		for _, re := range entry.Patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			params := entry.Extract(m)
			if params == nil {
				params = Params{}
			}
			return Resolution{Intent: entry.Intent, Params: params, Raw: text}, nil
		}
	}
	return Resolution{}, ErrUnrecognizedCommand
}
