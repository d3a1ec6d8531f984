// Package trace carries a per-request correlation id through contexts so that
// log lines, audit rows and command history of one request can be joined.
package trace

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header is the HTTP header used to accept and echo request ids.
const Header = "X-Request-ID"

type traceKey struct{}

// inbound ids are accepted only when they look like ids, so log lines cannot
// be forged through the header.
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// GenerateID returns a new trace id.
func GenerateID() string {
	return "t_" + uuid.NewString()
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext returns the trace id in ctx or "".
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Middleware reuses a well-formed inbound X-Request-ID or generates one, stores
// it in the request context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !validID.MatchString(id) {
			id = GenerateID()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), id)))
	})
}
