package assistant

import (
	"context"
	"fmt"

	"github.com/dareon-io/dareon2/internal/dareon/files"
	"github.com/dareon-io/dareon2/internal/dareon/integrations"
)

// FileService is the local file collaborator. *files.Service implements it.
type FileService interface {
	List(ctx context.Context, userID string) ([]files.Entry, error)
	Sort(ctx context.Context, userID string, key files.SortKey) ([]files.Entry, error)
	Search(ctx context.Context, userID, query string) ([]files.Entry, error)
	Stats(ctx context.Context, userID string) (files.Stats, error)
}

// ConnectionStore reports a user's linked integrations.
// *integrations.Service implements it.
type ConnectionStore interface {
	IsConnected(ctx context.Context, userID string, provider integrations.Provider) (bool, error)
}

// Executor runs resolved commands. It keeps no state of its own; all reads
// and writes go through its collaborators.
type Executor struct {
	files FileService
	conns ConnectionStore
}

// NewExecutor returns an Executor over the given collaborators.
func NewExecutor(fs FileService, conns ConnectionStore) *Executor {
	return &Executor{files: fs, conns: conns}
}

// Execute runs res on behalf of userID. Every error it returns is a
// *CommandError.
func (e *Executor) Execute(ctx context.Context, userID string, res Resolution) (Result, error) {
	switch res.Intent {
	case IntentSortFiles:
		return e.sortFiles(ctx, userID, res.Params)
	case IntentSyncEmails:
		return e.syncEmails(ctx, userID, res.Params)
	case IntentUpdateCalendar:
		return e.updateCalendar(ctx, userID)
	case IntentListFiles:
		return e.listFiles(ctx, userID, res.Params)
	case IntentSearchFiles:
		return e.searchFiles(ctx, userID, res.Params)
	case IntentGetStats:
		return e.getStats(ctx, userID)
	default:
		return nil, newError(KindUnsupportedIntent, ErrUnsupportedIntent.Message,
			fmt.Errorf("intent %q", res.Intent))
	}
}

func (e *Executor) sortFiles(ctx context.Context, userID string, p Params) (Result, error) {
	key, err := files.ParseSortKey(p[ParamSortBy])
	if err != nil {
		return nil, newError(KindInvalidSortKey, ErrInvalidSortKey.Message, err)
	}
	list, err := e.files.Sort(ctx, userID, key)
	if err != nil {
		return nil, failed("sort files", err)
	}
	return FilesResult{
		Message: fmt.Sprintf("Files sorted by %s", key),
		Files:   nonNil(list),
	}, nil
}

// emailProviders maps the provider parameter to the integrations it covers.
func emailProviders(provider string) ([]integrations.Provider, bool) {
	switch provider {
	case "", ProviderAll:
		return []integrations.Provider{integrations.Microsoft, integrations.Google}, true
	case "outlook", "microsoft":
		return []integrations.Provider{integrations.Microsoft}, true
	case "gmail", "google":
		return []integrations.Provider{integrations.Google}, true
	}
	return nil, false
}

// syncEmails reports per provider. A disconnected provider is an entry in
// the result, never a failure of the command.
func (e *Executor) syncEmails(ctx context.Context, userID string, p Params) (Result, error) {
	providers, ok := emailProviders(p[ParamProvider])
	if !ok {
		return nil, newError(KindUnsupportedIntent, "Unsupported email provider",
			fmt.Errorf("provider %q", p[ParamProvider]))
	}

	results := make(map[string]ProviderOutcome, len(providers))
	for _, provider := range providers {
		connected, err := e.conns.IsConnected(ctx, userID, provider)
		if err != nil {
			return nil, failed("check "+string(provider)+" connection", err)
		}
		if !connected {
			results[string(provider)] = ProviderOutcome{Status: StatusError, Message: "Not connected"}
			continue
		}
		// TODO: call the provider mail APIs once the sync worker exists; until then a
		// connected account reports success.
		results[string(provider)] = ProviderOutcome{Status: StatusSuccess, Message: "Emails synchronized"}
	}
	return SyncResult{Message: "Email sync completed", Results: results}, nil
}

func (e *Executor) updateCalendar(ctx context.Context, userID string) (Result, error) {
	if err := e.require(ctx, userID, integrations.TimeTree, "TimeTree not connected"); err != nil {
		return nil, err
	}
	return CalendarResult{Message: "Calendar updated successfully", Status: StatusSuccess}, nil
}

func (e *Executor) listFiles(ctx context.Context, userID string, p Params) (Result, error) {
	if p[ParamSource] == SourceOneDrive {
		if err := e.require(ctx, userID, integrations.Microsoft, "OneDrive not connected"); err != nil {
			return nil, err
		}
		return FilesResult{Message: "OneDrive files retrieved", Files: []files.Entry{}}, nil
	}

	list, err := e.files.List(ctx, userID)
	if err != nil {
		return nil, failed("list files", err)
	}
	return FilesResult{Message: "Local files retrieved", Files: nonNil(list)}, nil
}

func (e *Executor) searchFiles(ctx context.Context, userID string, p Params) (Result, error) {
	query := p[ParamQuery]
	list, err := e.files.Search(ctx, userID, query)
	if err != nil {
		return nil, failed("search files", err)
	}
	return FilesResult{
		Message: fmt.Sprintf(`Search results for "%s"`, query),
		Files:   nonNil(list),
	}, nil
}

func (e *Executor) getStats(ctx context.Context, userID string) (Result, error) {
	st, err := e.files.Stats(ctx, userID)
	if err != nil {
		return nil, failed("file stats", err)
	}
	return StatsResult{Message: "Statistics retrieved", Stats: st}, nil
}

// require fails with IntegrationNotConnected and msg unless provider is
// linked.
func (e *Executor) require(ctx context.Context, userID string, provider integrations.Provider, msg string) error {
	connected, err := e.conns.IsConnected(ctx, userID, provider)
	if err != nil {
		return failed("check "+string(provider)+" connection", err)
	}
	if !connected {
		return newError(KindIntegrationNotConnected, msg, nil)
	}
	return nil
}

func nonNil(list []files.Entry) []files.Entry {
	if list == nil {
		return []files.Entry{}
	}
	return list
}
