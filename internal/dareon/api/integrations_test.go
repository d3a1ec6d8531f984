package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/integrations"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

func TestIntegrations_ConnectUnlocksCommands(t *testing.T) {
	e := newEnv(t)
	userID, tok := e.user(t, "link@example.com", store.TierBasic)

	w := e.doJSON(t, http.MethodPost, "/api/ai/command", tok, command("show my onedrive files"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.doJSON(t, http.MethodPut, "/api/integrations/microsoft", tok,
		map[string]string{"accessToken": "at-123", "refreshToken": "rt-456"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, audit.KindIntegrationEvent, e.recorder.last().Kind)

	stored, err := e.store.GetIntegration(context.Background(), userID, "microsoft")
	require.NoError(t, err)
	assert.NotEqual(t, "at-123", stored.AccessToken, "tokens are sealed at rest")

	w = e.doJSON(t, http.MethodGet, "/api/integrations", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []integrations.Status
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	connected := map[integrations.Provider]bool{}
	for _, s := range list {
		connected[s.Provider] = s.Connected
	}
	assert.Equal(t, map[integrations.Provider]bool{
		integrations.Microsoft: true,
		integrations.Google:    false,
		integrations.TimeTree:  false,
	}, connected)

	w = e.doJSON(t, http.MethodPost, "/api/ai/command", tok, command("show my onedrive files"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"intent":"list-files","result":{"message":"OneDrive files retrieved","files":[]}}`,
		string(decode(t, w).Data))

	w = e.doJSON(t, http.MethodDelete, "/api/integrations/microsoft", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.doJSON(t, http.MethodPost, "/api/ai/command", tok, command("show my onedrive files"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegrations_Validation(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, "bad-link@example.com", store.TierBasic)

	w := e.doJSON(t, http.MethodPut, "/api/integrations/dropbox", tok, map[string]string{"accessToken": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown integration provider", decode(t, w).Error)

	w = e.doJSON(t, http.MethodPut, "/api/integrations/google", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Access token is required", decode(t, w).Error)
	assert.Equal(t, audit.OutcomeError, e.recorder.last().Outcome)

	w = e.doJSON(t, http.MethodDelete, "/api/integrations/timeTree", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code, "disconnecting an unlinked provider is fine")
}
