// Package httpjson holds the JSON envelope helpers shared by every HTTP
// handler: {success: true, ...} on success and {success: false, error} on
// failure.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultMaxBody caps request bodies decoded with Decode.
const DefaultMaxBody = 1 << 20

// ErrBodyTooLarge is returned by Decode when the body exceeds its limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Write serialises v as JSON and writes it to w with the given status code.
func Write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpjson: failed to encode JSON response", "err", err)
	}
}

// OK writes {success: true, data}.
func OK(w http.ResponseWriter, code int, data any) {
	Write(w, code, map[string]any{"success": true, "data": data})
}

// Message writes {success: true, message}.
func Message(w http.ResponseWriter, code int, msg string) {
	Write(w, code, map[string]any{"success": true, "message": msg})
}

// Error writes {success: false, error: msg}.
func Error(w http.ResponseWriter, code int, msg string) {
	Write(w, code, map[string]any{"success": false, "error": msg})
}

// Decode reads at most limit bytes of JSON from r into v. limit <= 0 means
// DefaultMaxBody. Unknown fields are accepted.
func Decode(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	raw, err := ReadBody(w, r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ReadBody returns the raw request body, enforcing limit.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}
