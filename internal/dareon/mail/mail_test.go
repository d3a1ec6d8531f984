package mail_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dareon-io/dareon2/internal/dareon/mail"
)

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	m := mail.NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)), "Dareon2.0", "noreply@dareon.io")

	msg := mail.Verification("ada@example.com", "Ada", "http://x/api/auth/verify-email/abc")
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["type"] != "EMAIL_SENT" || line["to"] != "ada@example.com" {
		t.Errorf("unexpected log line %v", line)
	}
	if line["from"] != "Dareon2.0 <noreply@dareon.io>" {
		t.Errorf("from: %v", line["from"])
	}
	if strings.Contains(buf.String(), "verify-email/abc") {
		t.Error("one-time link leaked into log")
	}
}

func TestLogMailer_NoRecipient(t *testing.T) {
	var buf bytes.Buffer
	m := mail.NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)), "", "a@b.c")
	err := m.Send(context.Background(), mail.Message{Subject: "x"})
	if !errors.Is(err, mail.ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if !strings.Contains(buf.String(), "EMAIL_ERROR") {
		t.Errorf("expected EMAIL_ERROR line, got %s", buf.String())
	}
}

func TestTemplates(t *testing.T) {
	v := mail.Verification("a@b.c", "Ada", "URL1")
	if v.Subject != "Email Verification" || !strings.Contains(v.Body, "URL1") {
		t.Errorf("verification: %+v", v)
	}
	r := mail.PasswordReset("a@b.c", "Ada", "URL2")
	if r.Subject != "Password Reset" || !strings.Contains(r.Body, "URL2") {
		t.Errorf("reset: %+v", r)
	}
}
