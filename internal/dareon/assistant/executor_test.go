package assistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dareon-io/dareon2/internal/dareon/assistant"
	"github.com/dareon-io/dareon2/internal/dareon/files"
	"github.com/dareon-io/dareon2/internal/dareon/integrations"
)

type fakeFiles struct {
	entries []files.Entry
	stats   files.Stats
	err     error

	sortedBy files.SortKey
	query    string
}

func (f *fakeFiles) List(context.Context, string) ([]files.Entry, error) {
	return f.entries, f.err
}

func (f *fakeFiles) Sort(_ context.Context, _ string, key files.SortKey) ([]files.Entry, error) {
	f.sortedBy = key
	return f.entries, f.err
}

func (f *fakeFiles) Search(_ context.Context, _ string, q string) ([]files.Entry, error) {
	f.query = q
	return f.entries, f.err
}

func (f *fakeFiles) Stats(context.Context, string) (files.Stats, error) {
	return f.stats, f.err
}

type fakeConns struct {
	connected map[integrations.Provider]bool
	err       error
}

func (c fakeConns) IsConnected(_ context.Context, _ string, p integrations.Provider) (bool, error) {
	return c.connected[p], c.err
}

func connectedTo(ps ...integrations.Provider) fakeConns {
	m := map[integrations.Provider]bool{}
	for _, p := range ps {
		m[p] = true
	}
	return fakeConns{connected: m}
}

func resolve(t *testing.T, text string) assistant.Resolution {
	t.Helper()
	res, err := assistant.NewResolver(nil).Resolve(text)
	require.NoError(t, err)
	return res
}

func TestExecute_SyncEmailsPartialConnection(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo(integrations.Google))

	out, err := ex.Execute(context.Background(), "u1", resolve(t, "sync emails"))
	require.NoError(t, err)

	sync, ok := out.(assistant.SyncResult)
	require.True(t, ok, "expected SyncResult, got %T", out)
	assert.Equal(t, "Email sync completed", sync.Message)
	assert.Equal(t, map[string]assistant.ProviderOutcome{
		"microsoft": {Status: "error", Message: "Not connected"},
		"google":    {Status: "success", Message: "Emails synchronized"},
	}, sync.Results)
}

func TestExecute_SyncEmailsSingleProvider(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo(integrations.Microsoft))

	out, err := ex.Execute(context.Background(), "u1", resolve(t, "sync my outlook emails"))
	require.NoError(t, err)
	sync := out.(assistant.SyncResult)
	assert.Len(t, sync.Results, 1)
	assert.Equal(t, "success", sync.Results["microsoft"].Status)

	out, err = ex.Execute(context.Background(), "u1", resolve(t, "update my gmail emails"))
	require.NoError(t, err)
	sync = out.(assistant.SyncResult)
	assert.Len(t, sync.Results, 1)
	assert.Equal(t, "error", sync.Results["google"].Status)
}

func TestExecute_UpdateCalendar(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo())
	_, err := ex.Execute(context.Background(), "u1", resolve(t, "update my calendar"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assistant.ErrIntegrationNotConnected)

	var ce *assistant.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "TimeTree not connected", ce.Message)
	assert.Equal(t, http.StatusBadRequest, ce.Status())

	ex = assistant.NewExecutor(&fakeFiles{}, connectedTo(integrations.TimeTree))
	out, err := ex.Execute(context.Background(), "u1", resolve(t, "sync calendar"))
	require.NoError(t, err)
	assert.Equal(t, assistant.CalendarResult{Message: "Calendar updated successfully", Status: "success"}, out)
}

func TestExecute_SortFiles(t *testing.T) {
	ff := &fakeFiles{entries: []files.Entry{{Name: "a.txt"}}}
	ex := assistant.NewExecutor(ff, connectedTo())

	out, err := ex.Execute(context.Background(), "u1", resolve(t, "sort my files by size"))
	require.NoError(t, err)
	assert.Equal(t, files.SortBySize, ff.sortedBy)
	assert.Equal(t, "Files sorted by size", out.Summary())
	assert.Len(t, out.(assistant.FilesResult).Files, 1)
}

func TestExecute_InvalidSortKey(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo())
	res := assistant.Resolution{Intent: assistant.IntentSortFiles, Params: assistant.Params{"sortBy": "colour"}}

	_, err := ex.Execute(context.Background(), "u1", res)
	assert.ErrorIs(t, err, assistant.ErrInvalidSortKey)
}

func TestExecute_ListFiles(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo())

	out, err := ex.Execute(context.Background(), "u1", resolve(t, "show my files"))
	require.NoError(t, err)
	fr := out.(assistant.FilesResult)
	assert.Equal(t, "Local files retrieved", fr.Message)
	assert.NotNil(t, fr.Files, "an empty listing must encode as []")

	_, err = ex.Execute(context.Background(), "u1", resolve(t, "show my onedrive files"))
	assert.ErrorIs(t, err, assistant.ErrIntegrationNotConnected)

	ex = assistant.NewExecutor(&fakeFiles{}, connectedTo(integrations.Microsoft))
	out, err = ex.Execute(context.Background(), "u1", resolve(t, "list my onedrive files"))
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"OneDrive files retrieved","files":[]}`, string(raw))
}

func TestExecute_SearchFilesEmptyIsSuccess(t *testing.T) {
	ff := &fakeFiles{}
	ex := assistant.NewExecutor(ff, connectedTo())

	out, err := ex.Execute(context.Background(), "u1", resolve(t, `search files containing "report"`))
	require.NoError(t, err)
	assert.Equal(t, "report", ff.query)
	assert.Equal(t, `Search results for "report"`, out.Summary())
	assert.Empty(t, out.(assistant.FilesResult).Files)
}

func TestExecute_GetStats(t *testing.T) {
	ff := &fakeFiles{stats: files.Stats{TotalFiles: 3}}
	ex := assistant.NewExecutor(ff, connectedTo())

	out, err := ex.Execute(context.Background(), "u1", resolve(t, "show my stats"))
	require.NoError(t, err)
	assert.Equal(t, 3, out.(assistant.StatsResult).Stats.TotalFiles)
}

func TestExecute_CollaboratorFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	ex := assistant.NewExecutor(&fakeFiles{err: boom}, connectedTo())

	_, err := ex.Execute(context.Background(), "u1", resolve(t, "show my stats"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assistant.ErrExecutionFailed)
	assert.ErrorIs(t, err, boom)

	ce := assistant.AsCommandError(err)
	assert.Equal(t, http.StatusInternalServerError, ce.Status())
	assert.Equal(t, "Failed to process command", ce.Message)

	ex = assistant.NewExecutor(&fakeFiles{}, fakeConns{err: boom})
	_, err = ex.Execute(context.Background(), "u1", resolve(t, "sync emails"))
	assert.ErrorIs(t, err, assistant.ErrExecutionFailed)
}

func TestExecute_UnsupportedIntent(t *testing.T) {
	ex := assistant.NewExecutor(&fakeFiles{}, connectedTo())
	_, err := ex.Execute(context.Background(), "u1", assistant.Resolution{Intent: "launch-rocket"})
	assert.ErrorIs(t, err, assistant.ErrUnsupportedIntent)

	_, err = ex.Execute(context.Background(), "u1", assistant.Resolution{
		Intent: assistant.IntentSyncEmails,
		Params: assistant.Params{"provider": "yahoo"},
	})
	assert.ErrorIs(t, err, assistant.ErrUnsupportedIntent)
}

func TestCommandErrorStatus(t *testing.T) {
	for _, err := range []*assistant.CommandError{
		assistant.ErrEmptyCommand,
		assistant.ErrUnrecognizedCommand,
		assistant.ErrUnsupportedIntent,
		assistant.ErrIntegrationNotConnected,
		assistant.ErrInvalidSortKey,
	} {
		assert.Equal(t, http.StatusBadRequest, err.Status(), string(err.Kind))
	}
	assert.Equal(t, http.StatusInternalServerError, assistant.ErrExecutionFailed.Status())
	assert.NotErrorIs(t, assistant.ErrEmptyCommand, assistant.ErrUnrecognizedCommand)
}
