// Package audit records security and usage relevant events: assistant
// commands, file operations, authentication and integration changes.
//
// Recording is fire-and-forget. A Recorder never returns an error to the
// caller; failures are logged at WARN level.
//
// Every event carries the request trace ID so an operator can join the
// structured log, the audit_log table and the client's X-Request-ID.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/dareon-io/dareon2/common/redact"
	"github.com/dareon-io/dareon2/common/trace"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindAICommand        Kind = "AI_COMMAND"
	KindAICommandError   Kind = "AI_COMMAND_ERROR"
	KindFileOperation    Kind = "FILE_OPERATION"
	KindAuthEvent        Kind = "AUTH_EVENT"
	KindIntegrationEvent Kind = "INTEGRATION_EVENT"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Event is one audited action.
type Event struct {
	Kind Kind
	// UserID is the acting user, empty for anonymous requests.
	UserID string
	// Action names the operation within Kind, e.g. "login" or "upload".
	Action string
	// Command is the raw assistant command text, when there is one.
	Command string
	// Intent is the resolved intent tag.
	Intent  string
	Outcome string
	Error   string
	// TraceID defaults to the trace ID in the context.
	TraceID string
	// Details holds extra structured fields. Sensitive keys are redacted
	// before the event is persisted.
	Details map[string]any
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, evt Event)
}

func (e *Event) fill(ctx context.Context) {
	if e.TraceID == "" {
		e.TraceID = trace.FromContext(ctx)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
}

// SlogRecorder writes events to a structured logger.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a recorder over logger; nil means slog.Default().
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record logs evt at INFO, or ERROR when the outcome is an error.
func (r *SlogRecorder) Record(ctx context.Context, evt Event) {
	evt.fill(ctx)
	attrs := []any{
		"type", string(evt.Kind),
		"user_id", evt.UserID,
		"outcome", evt.Outcome,
		"trace_id", evt.TraceID,
	}
	if evt.Action != "" {
		attrs = append(attrs, "action", evt.Action)
	}
	if evt.Command != "" {
		attrs = append(attrs, "command", evt.Command)
	}
	if evt.Intent != "" {
		attrs = append(attrs, "intent", evt.Intent)
	}
	if evt.Error != "" {
		attrs = append(attrs, "error", evt.Error)
	}
	if len(evt.Details) > 0 {
		attrs = append(attrs, "details", redact.Map(evt.Details))
	}

	level := slog.LevelInfo
	if evt.Outcome == OutcomeError {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "audit", attrs...)
}

// Writer is the persistence StoreRecorder needs. *store.Store implements it.
type Writer interface {
	WriteAudit(ctx context.Context, traceID, actorID, action, target, result string, payload store.AuditPayload, errorMsg string) error
}

// StoreRecorder persists events to the audit_log table.
type StoreRecorder struct {
	w       Writer
	timeout time.Duration
}

// NewStoreRecorder returns a recorder writing through w.
func NewStoreRecorder(w Writer) *StoreRecorder {
	return &StoreRecorder{w: w, timeout: 2 * time.Second}
}

// Record writes evt. The write is detached from the request's cancellation
// so that a client hanging up does not lose the audit row.
func (r *StoreRecorder) Record(ctx context.Context, evt Event) {
	evt.fill(ctx)

	payload := store.AuditPayload{}
	if evt.Command != "" {
		payload["command"] = evt.Command
	}
	if evt.Intent != "" {
		payload["intent"] = evt.Intent
	}
	for k, v := range redact.Map(evt.Details) {
		payload[k] = v
	}
	if len(payload) == 0 {
		payload = nil
	}

	target := evt.Intent
	if target == "" {
		target = evt.Action
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.w.WriteAudit(wctx, evt.TraceID, evt.UserID, string(evt.Kind), target, evt.Outcome, payload, evt.Error); err != nil {
		slog.Warn("audit: failed to persist event", "kind", evt.Kind, "trace_id", evt.TraceID, "err", err)
	}
}

// Multi fans an event out to several recorders in order.
type Multi []Recorder

// Record forwards evt to every recorder.
func (m Multi) Record(ctx context.Context, evt Event) {
	evt.fill(ctx)
	for _, r := range m {
		r.Record(ctx, evt)
	}
}

// Noop is a no-op Recorder used when auditing is disabled.
type Noop struct{}

// Record does nothing.
func (Noop) Record(context.Context, Event) {}
