// Package api is the HTTP delivery layer: it decodes requests, calls the
// assistant, file, integration and account services, and translates their
// results into the {success, data} / {success: false, error} envelope.
package api

import (
	"net/http"

	"github.com/dareon-io/dareon2/internal/dareon/auth"
)

// Registrar adds a group of routes to mux. Private routes are wrapped with
// guard.
type Registrar interface {
	Register(mux *http.ServeMux, guard *auth.Guard)
}

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// chain applies mws so that the first one runs outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// UserKey keys rate limiting by the authenticated user. It must run after
// auth.Guard.Protect.
func UserKey(r *http.Request) string {
	if u, ok := auth.UserFromContext(r.Context()); ok {
		return u.ID
	}
	return ""
}

// listResponse mirrors the collection envelope used by the file routes.
type listResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

// mustUser returns the user attached by Protect. Routes using it are always
// registered behind Protect.
func mustUser(r *http.Request) string {
	u, _ := auth.UserFromContext(r.Context())
	if u == nil {
		return ""
	}
	return u.ID
}
