package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/auth"
	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
	"github.com/dareon-io/dareon2/internal/dareon/integrations"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
)

// IntegrationService manages linked accounts. *integrations.Service
// implements it.
type IntegrationService interface {
	List(ctx context.Context, userID string) ([]integrations.Status, error)
	Connect(ctx context.Context, userID string, provider integrations.Provider, tok integrations.Tokens) error
	Disconnect(ctx context.Context, userID string, provider integrations.Provider) error
}

// IntegrationsHandler serves /api/integrations.
type IntegrationsHandler struct {
	svc      IntegrationService
	recorder audit.Recorder
}

// NewIntegrationsHandler returns the integration routes.
func NewIntegrationsHandler(svc IntegrationService, recorder audit.Recorder) *IntegrationsHandler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	return &IntegrationsHandler{svc: svc, recorder: recorder}
}

// Register implements Registrar.
func (h *IntegrationsHandler) Register(mux *http.ServeMux, guard *auth.Guard) {
	mux.Handle("GET /api/integrations", guard.Protect(http.HandlerFunc(h.handleList)))
	mux.Handle("PUT /api/integrations/{provider}", guard.Protect(http.HandlerFunc(h.handleConnect)))
	mux.Handle("DELETE /api/integrations/{provider}", guard.Protect(http.HandlerFunc(h.handleDisconnect)))
}

func (h *IntegrationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), mustUser(r))
	if err != nil {
		observability.WithTrace(r.Context()).Error("integrations: list failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Server Error")
		return
	}
	httpjson.OK(w, http.StatusOK, list)
}

func (h *IntegrationsHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	provider, err := integrations.ParseProvider(r.PathValue("provider"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Unknown integration provider")
		return
	}
	var tok integrations.Tokens
	if err := httpjson.Decode(w, r, 0, &tok); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID := mustUser(r)
	err = h.svc.Connect(r.Context(), userID, provider, tok)
	h.audit(r.Context(), userID, "connect", provider, err)
	switch {
	case errors.Is(err, integrations.ErrMissingAccessToken):
		httpjson.Error(w, http.StatusBadRequest, "Access token is required")
	case err != nil:
		observability.WithTrace(r.Context()).Error("integrations: connect failed", "provider", provider, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Server Error")
	default:
		httpjson.OK(w, http.StatusOK, integrations.Status{Provider: provider, Connected: true})
	}
}

func (h *IntegrationsHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	provider, err := integrations.ParseProvider(r.PathValue("provider"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Unknown integration provider")
		return
	}
	userID := mustUser(r)
	err = h.svc.Disconnect(r.Context(), userID, provider)
	h.audit(r.Context(), userID, "disconnect", provider, err)
	if err != nil {
		observability.WithTrace(r.Context()).Error("integrations: disconnect failed", "provider", provider, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Server Error")
		return
	}
	httpjson.OK(w, http.StatusOK, integrations.Status{Provider: provider, Connected: false})
}

func (h *IntegrationsHandler) audit(ctx context.Context, userID, action string, provider integrations.Provider, err error) {
	evt := audit.Event{
		Kind:    audit.KindIntegrationEvent,
		UserID:  userID,
		Action:  action,
		Details: map[string]any{"provider": string(provider)},
	}
	if err != nil {
		evt.Outcome = audit.OutcomeError
		evt.Error = err.Error()
	}
	h.recorder.Record(ctx, evt)
}
