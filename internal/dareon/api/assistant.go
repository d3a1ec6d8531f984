package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dareon-io/dareon2/common/trace"
	"github.com/dareon-io/dareon2/internal/dareon/assistant"
	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/auth"
	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
	"github.com/dareon-io/dareon2/internal/dareon/ratelimit"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// MaxCommandBody caps the POST /api/ai/command body.
const MaxCommandBody = 64 << 10

// DefaultHistoryLimit is used when ?limit is absent or malformed.
const DefaultHistoryLimit = 20

var commandSchema = jsonschema.MustCompileString("command-request.json", `{
	"type": "object",
	"required": ["command"],
	"properties": {
		"command": {"type": "string"}
	}
}`)

// CommandExecutor runs a resolved command. *assistant.Executor implements it.
type CommandExecutor interface {
	Execute(ctx context.Context, userID string, res assistant.Resolution) (assistant.Result, error)
}

// CommandHistory stores issued commands. *store.Store implements it.
type CommandHistory interface {
	AppendCommand(ctx context.Context, rec store.CommandRecord) error
	ListCommands(ctx context.Context, userID string, limit int) ([]store.CommandRecord, error)
}

// AssistantHandler serves /api/ai.
type AssistantHandler struct {
	resolver *assistant.Resolver
	executor CommandExecutor
	history  CommandHistory
	recorder audit.Recorder
	limiter  *ratelimit.Limiter
}

// NewAssistantHandler wires the command boundary. limiter applies per user to
// POST /api/ai/command and may be nil.
func NewAssistantHandler(resolver *assistant.Resolver, executor CommandExecutor, history CommandHistory, recorder audit.Recorder, limiter *ratelimit.Limiter) *AssistantHandler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	return &AssistantHandler{
		resolver: resolver,
		executor: executor,
		history:  history,
		recorder: recorder,
		limiter:  limiter,
	}
}

// Register implements Registrar.
func (h *AssistantHandler) Register(mux *http.ServeMux, guard *auth.Guard) {
	paid := []Middleware{guard.Protect, guard.RequireSubscription(store.TierBasic)}
	command := paid
	if h.limiter != nil {
		command = append(command[:len(command):len(command)], h.limiter.Middleware(UserKey))
	}
	mux.Handle("POST /api/ai/command", chain(http.HandlerFunc(h.handleCommand), command...))
	mux.Handle("GET /api/ai/history", chain(http.HandlerFunc(h.handleHistory), paid...))
	mux.Handle("GET /api/ai/suggestions", chain(http.HandlerFunc(h.handleSuggestions), guard.Protect))
}

type commandResponse struct {
	Intent assistant.Intent `json:"intent"`
	Result assistant.Result `json:"result"`
}

func (h *AssistantHandler) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mustUser(r)

	raw, err := httpjson.ReadBody(w, r, MaxCommandBody)
	if errors.Is(err, httpjson.ErrBodyTooLarge) {
		httpjson.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := commandSchema.Validate(doc); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Command must be a string")
		return
	}
	command := doc.(map[string]any)["command"].(string)

	start := time.Now()
	res, err := h.resolver.Resolve(command)
	var result assistant.Result
	if err == nil {
		result, err = h.executor.Execute(ctx, userID, res)
	}
	h.record(ctx, userID, command, res.Intent, time.Since(start), err)

	if err != nil {
		ce := assistant.AsCommandError(err)
		if ce.Kind == assistant.KindExecutionFailed {
			observability.WithTrace(ctx).Error("assistant: command failed",
				"user_id", userID, "intent", res.Intent, "err", err)
		}
		httpjson.Error(w, ce.Status(), ce.Message)
		return
	}
	httpjson.OK(w, http.StatusOK, commandResponse{Intent: res.Intent, Result: result})
}

// record audits the invocation and appends it to the user's history. Neither
// affects the response.
func (h *AssistantHandler) record(ctx context.Context, userID, command string, intent assistant.Intent, took time.Duration, err error) {
	evt := audit.Event{
		Kind:    audit.KindAICommand,
		UserID:  userID,
		Command: command,
		Intent:  string(intent),
		Outcome: audit.OutcomeSuccess,
		Details: map[string]any{"duration_ms": took.Milliseconds()},
	}
	rec := store.CommandRecord{
		UserID:  userID,
		Command: command,
		Intent:  string(intent),
		Outcome: store.OutcomeSuccess,
		TraceID: trace.FromContext(ctx),
	}
	if err != nil {
		ce := assistant.AsCommandError(err)
		evt.Kind = audit.KindAICommandError
		evt.Outcome = audit.OutcomeError
		evt.Error = ce.Error()
		evt.Details["kind"] = string(ce.Kind)
		rec.Outcome = store.OutcomeError
		rec.Error = ce.Message
	}
	h.recorder.Record(ctx, evt)

	if h.history == nil {
		return
	}
	if err := h.history.AppendCommand(context.WithoutCancel(ctx), rec); err != nil {
		observability.WithTrace(ctx).Warn("assistant: failed to append history", "user_id", userID, "err", err)
	}
}

func (h *AssistantHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if h.history == nil {
		httpjson.OK(w, http.StatusOK, []store.CommandRecord{})
		return
	}
	recs, err := h.history.ListCommands(r.Context(), mustUser(r), limit)
	if err != nil {
		observability.WithTrace(r.Context()).Error("assistant: list history failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Failed to load command history")
		return
	}
	httpjson.OK(w, http.StatusOK, recs)
}

func (h *AssistantHandler) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	httpjson.OK(w, http.StatusOK, assistant.Suggestions())
}
