package redact_test

import (
	"net/http"
	"testing"

	"github.com/dareon-io/dareon2/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	line := "login failed for token eyJhbGciOi (retry)"
	got := redact.String(line, "eyJhbGciOi")
	const want = "login failed for token [REDACTED] (retry)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	if got := redact.String("abc abc", "abc"); got != "abc abc" {
		t.Fatalf("short values must be left alone, got %q", got)
	}
}

func TestMap_RedactsNestedKeys(t *testing.T) {
	in := map[string]any{
		"email":    "ada@example.com",
		"password": "hunter22",
		"microsoft": map[string]any{
			"accessToken": "at-1",
			"connected":   true,
		},
		"emptyToken": "",
	}
	out := redact.Map(in)

	if out["email"] != "ada@example.com" {
		t.Errorf("email should be kept, got %v", out["email"])
	}
	if out["password"] != "[REDACTED]" {
		t.Errorf("password should be redacted, got %v", out["password"])
	}
	nested := out["microsoft"].(map[string]any)
	if nested["accessToken"] != "[REDACTED]" {
		t.Errorf("nested token should be redacted, got %v", nested["accessToken"])
	}
	if nested["connected"] != true {
		t.Errorf("non-string values are kept, got %v", nested["connected"])
	}
	if out["emptyToken"] != "" {
		t.Errorf("empty values are kept, got %v", out["emptyToken"])
	}
	if in["password"] != "hunter22" {
		t.Error("input map must not be modified")
	}
}

func TestHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc.def")
	h.Set("Cookie", "token=abc")
	h.Set("Accept", "application/json")

	out := redact.Header(h)
	if out.Get("Authorization") != "[REDACTED]" || out.Get("Cookie") != "[REDACTED]" {
		t.Errorf("credentials not redacted: %v", out)
	}
	if out.Get("Accept") != "application/json" {
		t.Errorf("Accept changed: %v", out.Get("Accept"))
	}
	if h.Get("Authorization") != "Bearer abc.def" {
		t.Error("input header must not be modified")
	}
}
