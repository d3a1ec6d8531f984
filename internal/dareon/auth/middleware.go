package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// CookieName carries the session token for browser clients.
const CookieName = "token"

// Storage quota per subscription tier, in bytes.
var StorageLimits = map[string]int64{
	store.TierFree:    1 << 30,
	store.TierBasic:   10 << 30,
	store.TierPremium: 100 << 30,
}

// UserStore is the lookup Protect needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user attached by Protect.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userKey{}).(*store.User)
	return u, ok && u != nil
}

// TokenFromRequest reads the bearer token, falling back to the session
// cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer") {
		if fields := strings.Fields(h); len(fields) == 2 {
			return fields[1]
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Guard authenticates requests and enforces subscription rules.
type Guard struct {
	issuer *Issuer
	users  UserStore
	now    func() time.Time
}

// NewGuard returns a Guard verifying tokens with issuer.
func NewGuard(issuer *Issuer, users UserStore) *Guard {
	return &Guard{issuer: issuer, users: users, now: time.Now}
}

// WithClock replaces the time source used for trial checks.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Protect admits requests carrying a valid token for a verified user with an
// active subscription.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			httpjson.Error(w, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}
		id, err := g.issuer.Verify(token)
		if err != nil {
			httpjson.Error(w, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}
		u, err := g.users.GetUser(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpjson.Error(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			observability.WithTrace(r.Context()).Error("auth: user lookup failed", "user_id", id, "err", err)
			httpjson.Error(w, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}
		observability.SetUser(r.Context(), u.ID)
		if !u.IsEmailVerified {
			httpjson.Error(w, http.StatusForbidden, "Please verify your email address")
			return
		}
		if u.SubscriptionStatus != store.SubscriptionActive {
			httpjson.Error(w, http.StatusForbidden, "Subscription inactive or expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireSubscription admits users on a running free trial or holding tier
// (premium always qualifies) whose storage is under their tier's quota. It
// must run after Protect.
func (g *Guard) RequireSubscription(tier string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, "Not authorized to access this route")
				return
			}
			if status, msg := g.checkSubscription(u, tier); status != 0 {
				httpjson.Error(w, status, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) checkSubscription(u *store.User, tier string) (int, string) {
	onTrial := u.SubscriptionType == store.TierFree && g.now().Before(u.SubscriptionEnd)
	hasTier := u.SubscriptionType == tier || u.SubscriptionType == store.TierPremium
	if !onTrial && !hasTier {
		return http.StatusForbidden, fmt.Sprintf("This feature requires a %s subscription", tier)
	}
	if limit, ok := StorageLimits[u.SubscriptionType]; ok && u.StorageUsed >= limit {
		return http.StatusForbidden, "Storage limit reached for your subscription tier"
	}
	return 0, ""
}
