package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dareon-io/dareon2/common/trace"
	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

type auditRow struct {
	traceID, actor, action, target, result, errMsg string
	payload                                        store.AuditPayload
}

type fakeWriter struct {
	rows []auditRow
	err  error
}

func (f *fakeWriter) WriteAudit(_ context.Context, traceID, actorID, action, target, result string, payload store.AuditPayload, errorMsg string) error {
	f.rows = append(f.rows, auditRow{traceID, actorID, action, target, result, errorMsg, payload})
	return f.err
}

func TestStoreRecorder_WritesRedactedRow(t *testing.T) {
	w := &fakeWriter{}
	rec := audit.NewStoreRecorder(w)
	ctx := trace.WithTraceID(context.Background(), "t_abc123")

	rec.Record(ctx, audit.Event{
		Kind:    audit.KindAICommand,
		UserID:  "u1",
		Command: "sort my files by type",
		Intent:  "sort-files",
		Details: map[string]any{"accessToken": "super-secret", "count": 3},
	})

	if len(w.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(w.rows))
	}
	row := w.rows[0]
	if row.traceID != "t_abc123" {
		t.Errorf("trace id from context: got %q", row.traceID)
	}
	if row.action != "AI_COMMAND" || row.target != "sort-files" || row.result != "success" {
		t.Errorf("unexpected row %+v", row)
	}
	if row.payload["command"] != "sort my files by type" {
		t.Errorf("payload command: %v", row.payload["command"])
	}
	if row.payload["accessToken"] == "super-secret" {
		t.Error("token leaked into audit payload")
	}
}

func TestStoreRecorder_SwallowsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("db gone")}
	// Must not panic or block.
	audit.NewStoreRecorder(w).Record(context.Background(), audit.Event{Kind: audit.KindAuthEvent, Action: "login"})
	if len(w.rows) != 1 || w.rows[0].target != "login" {
		t.Fatalf("unexpected rows %+v", w.rows)
	}
}

func TestStoreRecorder_SurvivesCancelledRequest(t *testing.T) {
	w := &fakeWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	audit.NewStoreRecorder(w).Record(ctx, audit.Event{Kind: audit.KindFileOperation, Action: "upload"})
	if len(w.rows) != 1 {
		t.Fatalf("expected the row to be written, got %d", len(w.rows))
	}
}

func TestSlogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := audit.NewSlogRecorder(logger)

	rec.Record(context.Background(), audit.Event{
		Kind:    audit.KindAICommandError,
		UserID:  "u9",
		Command: "do something impossible",
		Outcome: audit.OutcomeError,
		Error:   "Could not understand command",
		TraceID: "t_x",
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["level"] != "ERROR" {
		t.Errorf("level: got %v", line["level"])
	}
	for k, want := range map[string]string{
		"type":     "AI_COMMAND_ERROR",
		"user_id":  "u9",
		"command":  "do something impossible",
		"trace_id": "t_x",
		"error":    "Could not understand command",
	} {
		if line[k] != want {
			t.Errorf("%s: got %v, want %q", k, line[k], want)
		}
	}
}

type captureRecorder struct{ events []audit.Event }

func (c *captureRecorder) Record(_ context.Context, evt audit.Event) { c.events = append(c.events, evt) }

func TestMulti(t *testing.T) {
	a, b := &captureRecorder{}, &captureRecorder{}
	audit.Multi{a, b, audit.Noop{}}.Record(context.Background(), audit.Event{Kind: audit.KindIntegrationEvent})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fan-out failed: %d %d", len(a.events), len(b.events))
	}
	if a.events[0].Timestamp.IsZero() || a.events[0].Outcome != audit.OutcomeSuccess {
		t.Errorf("defaults not applied: %+v", a.events[0])
	}
	if !strings.EqualFold(string(b.events[0].Kind), "integration_event") {
		t.Errorf("kind: %v", b.events[0].Kind)
	}
}
