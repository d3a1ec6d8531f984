// Package redact strips credentials from values before they are logged or
// written to the audit table.
//
// Redaction is best-effort and operates on keys and string values; it does
// not replace keeping passwords and OAuth tokens out of log call-sites.
package redact

import (
	"net/http"
	"strings"
)

const placeholder = "[REDACTED]"

var sensitiveWords = []string{
	"password", "passwd", "token", "secret", "credential", "authorization", "apikey", "api_key", "cookie",
}

// String replaces every occurrence of each sensitive value in s. Values
// shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a copy of m in which non-empty string values under sensitive
// keys are replaced. Nested maps are redacted recursively.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = Map(val)
			continue
		case string:
			if val != "" && IsSensitiveKey(k) {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Header returns a copy of h with Authorization and Cookie values replaced.
func Header(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if IsSensitiveKey(k) {
			out[k] = []string{placeholder}
		}
	}
	return out
}

// IsSensitiveKey reports whether the key name suggests a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
