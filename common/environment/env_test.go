package environment_test

import (
	"testing"
	"time"

	"github.com/dareon-io/dareon2/common/environment"
)

func TestLookup_PrefixWins(t *testing.T) {
	src := environment.Map("DAREON_", map[string]string{
		"DAREON_PORT": "9000",
		"PORT":        "5000",
	})
	if got := src.StringOr("PORT", "1"); got != "9000" {
		t.Errorf("expected prefixed value 9000, got %q", got)
	}
}

func TestLookup_FallsBackToBareName(t *testing.T) {
	src := environment.Map("DAREON_", map[string]string{"PORT": "5000"})
	if got := src.StringOr("PORT", "1"); got != "5000" {
		t.Errorf("expected bare value 5000, got %q", got)
	}
}

func TestLookup_EmptyPrefixedValueIgnored(t *testing.T) {
	src := environment.Map("DAREON_", map[string]string{"DAREON_PORT": "", "PORT": "5000"})
	if got := src.StringOr("PORT", "1"); got != "5000" {
		t.Errorf("expected 5000, got %q", got)
	}
}

func TestRequired(t *testing.T) {
	src := environment.Map("", map[string]string{"JWT_SECRET": "s3cret"})
	v, err := src.Required("JWT_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "s3cret" {
		t.Errorf("expected s3cret, got %q", v)
	}
	if _, err := src.Required("MISSING"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestTypedGetters(t *testing.T) {
	src := environment.Map("", map[string]string{
		"BOOL":     "true",
		"BAD_BOOL": "maybe",
		"INT":      " 42 ",
		"BAD_INT":  "x",
		"DUR":      "90s",
		"DAYS":     "30",
		"DAYS_SFX": "7d",
		"BAD_DUR":  "soon",
		"LIST":     "a, b,,c ",
		"EMPTY":    " , ",
	})

	if !src.BoolOr("BOOL", false) {
		t.Error("BOOL: expected true")
	}
	if !src.BoolOr("BAD_BOOL", true) {
		t.Error("BAD_BOOL: expected default true")
	}
	if got := src.IntOr("INT", 0); got != 42 {
		t.Errorf("INT: got %d", got)
	}
	if got := src.IntOr("BAD_INT", 7); got != 7 {
		t.Errorf("BAD_INT: got %d", got)
	}
	if got := src.DurationOr("DUR", 0); got != 90*time.Second {
		t.Errorf("DUR: got %v", got)
	}
	if got := src.DurationOr("DAYS", 0); got != 30*24*time.Hour {
		t.Errorf("DAYS: got %v", got)
	}
	if got := src.DurationOr("DAYS_SFX", 0); got != 7*24*time.Hour {
		t.Errorf("DAYS_SFX: got %v", got)
	}
	if got := src.DurationOr("BAD_DUR", time.Minute); got != time.Minute {
		t.Errorf("BAD_DUR: got %v", got)
	}
	list := src.StringSliceOr("LIST", nil)
	if len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Errorf("LIST: got %v", list)
	}
	if got := src.StringSliceOr("EMPTY", []string{"d"}); len(got) != 1 || got[0] != "d" {
		t.Errorf("EMPTY: got %v", got)
	}
}
