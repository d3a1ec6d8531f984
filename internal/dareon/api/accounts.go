package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/auth"
	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
	"github.com/dareon-io/dareon2/internal/dareon/mail"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// UserRepository is the account persistence. *store.Store implements it.
type UserRepository interface {
	auth.UserStore
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByVerificationToken(ctx context.Context, digest string, now time.Time) (*store.User, error)
	GetUserByResetToken(ctx context.Context, digest string, now time.Time) (*store.User, error)
	UpdateUser(ctx context.Context, u *store.User) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// AccountsOptions tunes session cookies.
type AccountsOptions struct {
	CookieTTL time.Duration
	// Secure marks the session cookie Secure (production).
	Secure bool
}

// AccountsHandler serves /api/auth.
type AccountsHandler struct {
	users    UserRepository
	issuer   *auth.Issuer
	mailer   mail.Mailer
	recorder audit.Recorder
	opts     AccountsOptions
	now      func() time.Time
}

// NewAccountsHandler returns the account routes.
func NewAccountsHandler(users UserRepository, issuer *auth.Issuer, mailer mail.Mailer, recorder audit.Recorder, opts AccountsOptions) *AccountsHandler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	if opts.CookieTTL <= 0 {
		opts.CookieTTL = 30 * 24 * time.Hour
	}
	return &AccountsHandler{users: users, issuer: issuer, mailer: mailer, recorder: recorder, opts: opts, now: time.Now}
}

// Register implements Registrar.
func (h *AccountsHandler) Register(mux *http.ServeMux, guard *auth.Guard) {
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("GET /api/auth/verify-email/{token}", h.handleVerifyEmail)
	mux.HandleFunc("POST /api/auth/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("PUT /api/auth/reset-password/{token}", h.handleResetPassword)
	mux.Handle("GET /api/auth/me", guard.Protect(http.HandlerFunc(h.handleMe)))
	mux.Handle("PUT /api/auth/updatedetails", guard.Protect(http.HandlerFunc(h.handleUpdateDetails)))
	mux.Handle("PUT /api/auth/updatepassword", guard.Protect(http.HandlerFunc(h.handleUpdatePassword)))
	mux.Handle("GET /api/auth/logout", guard.Protect(http.HandlerFunc(h.handleLogout)))
}

type subscriptionView struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

type statsView struct {
	FilesManaged int        `json:"filesManaged"`
	StorageUsed  int64      `json:"storageUsed"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	LoginCount   int        `json:"loginCount"`
}

// userView is the client-visible account. Password and token digests never
// leave the server.
type userView struct {
	ID              string           `json:"id"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	Email           string           `json:"email"`
	CompanyName     string           `json:"companyName,omitempty"`
	Role            string           `json:"role"`
	Subscription    subscriptionView `json:"subscription"`
	IsEmailVerified bool             `json:"isEmailVerified"`
	Stats           *statsView       `json:"stats,omitempty"`
}

func viewOf(u *store.User, withStats bool) userView {
	v := userView{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		CompanyName: u.CompanyName,
		Role:        u.Role,
		Subscription: subscriptionView{
			Type:      u.SubscriptionType,
			Status:    u.SubscriptionStatus,
			StartDate: u.SubscriptionStart,
			EndDate:   u.SubscriptionEnd,
		},
		IsEmailVerified: u.IsEmailVerified,
	}
	if withStats {
		v.Stats = &statsView{
			FilesManaged: u.FilesManaged,
			StorageUsed:  u.StorageUsed,
			LastLogin:    u.LastLogin,
			LoginCount:   u.LoginCount,
		}
	}
	return v
}

type tokenResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	User    userView `json:"user"`
}

// sendToken issues a session token, sets it as a cookie and writes it in the
// body.
func (h *AccountsHandler) sendToken(w http.ResponseWriter, r *http.Request, code int, u *store.User) {
	tok, err := h.issuer.Issue(u.ID)
	if err != nil {
		h.serverError(w, r, "issue token", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  h.now().Add(h.opts.CookieTTL),
		HttpOnly: true,
		Secure:   h.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	httpjson.Write(w, code, tokenResponse{Success: true, Token: tok, User: viewOf(u, false)})
}

func (h *AccountsHandler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observability.WithTrace(r.Context()).Error("auth: "+op+" failed", "err", err)
	httpjson.Error(w, http.StatusInternalServerError, "Server Error")
}

func (h *AccountsHandler) auditAuth(ctx context.Context, userID, action string, err error) {
	evt := audit.Event{Kind: audit.KindAuthEvent, UserID: userID, Action: action}
	if err != nil {
		evt.Outcome = audit.OutcomeError
		evt.Error = err.Error()
	}
	h.recorder.Record(ctx, evt)
}

// link builds an absolute URL on this server for path.
func link(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, path)
}

type registerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"companyName"`
}

func (req *registerRequest) validate() string {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	switch {
	case req.FirstName == "":
		return "First name is required"
	case req.LastName == "":
		return "Last name is required"
	case req.Email == "":
		return "Email is required"
	case !emailPattern.MatchString(req.Email):
		return "Please enter a valid email"
	case req.Password == "":
		return "Password is required"
	case len(req.Password) < auth.MinPasswordLength:
		return fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength)
	case req.CompanyName == "":
		return "Company name is required"
	}
	return ""
}

func (h *AccountsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		httpjson.Error(w, http.StatusBadRequest, msg)
		return
	}
	ctx := r.Context()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.serverError(w, r, "hash password", err)
		return
	}
	token, digest, err := auth.NewOneTimeToken()
	if err != nil {
		h.serverError(w, r, "verification token", err)
		return
	}
	expire := h.now().Add(auth.VerificationTTL)
	u := &store.User{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		PasswordHash:       hash,
		CompanyName:        req.CompanyName,
		VerificationToken:  digest,
		VerificationExpire: &expire,
	}
	if err := h.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			httpjson.Error(w, http.StatusBadRequest, "Email already registered")
			return
		}
		h.serverError(w, r, "create user", err)
		return
	}

	msg := mail.Verification(u.Email, u.FirstName, link(r, "/api/auth/verify-email/"+token))
	if err := h.mailer.Send(ctx, msg); err != nil {
		u.VerificationToken, u.VerificationExpire = "", nil
		if uerr := h.users.UpdateUser(ctx, u); uerr != nil {
			observability.WithTrace(ctx).Warn("auth: failed to clear verification token", "user_id", u.ID, "err", uerr)
		}
		observability.WithTrace(ctx).Error("auth: verification email failed", "user_id", u.ID, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Email could not be sent")
		return
	}
	h.auditAuth(ctx, u.ID, "register", nil)
	h.sendToken(w, r, http.StatusCreated, u)
}

func (h *AccountsHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "Please provide an email and password")
		return
	}
	ctx := r.Context()

	u, err := h.users.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.serverError(w, r, "lookup user", err)
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		id := ""
		if u != nil {
			id = u.ID
		}
		h.auditAuth(ctx, id, "login", errors.New("invalid credentials"))
		httpjson.Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	now := h.now()
	if err := h.users.RecordLogin(ctx, u.ID, now); err != nil {
		h.serverError(w, r, "record login", err)
		return
	}
	u.LastLogin = &now
	u.LoginCount++
	h.auditAuth(ctx, u.ID, "login", nil)
	h.sendToken(w, r, http.StatusOK, u)
}

func (h *AccountsHandler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.GetUserByVerificationToken(ctx, auth.Digest(r.PathValue("token")), h.now())
	if errors.Is(err, store.ErrNotFound) {
		httpjson.Error(w, http.StatusBadRequest, "Invalid token")
		return
	}
	if err != nil {
		h.serverError(w, r, "lookup verification token", err)
		return
	}
	u.IsEmailVerified = true
	u.VerificationToken, u.VerificationExpire = "", nil
	if err := h.users.UpdateUser(ctx, u); err != nil {
		h.serverError(w, r, "verify email", err)
		return
	}
	h.auditAuth(ctx, u.ID, "verify-email", nil)
	httpjson.Message(w, http.StatusOK, "Email verified successfully")
}

func (h *AccountsHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := r.Context()
	u, err := h.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		httpjson.Error(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "lookup user", err)
		return
	}

	token, digest, err := auth.NewOneTimeToken()
	if err != nil {
		h.serverError(w, r, "reset token", err)
		return
	}
	expire := h.now().Add(auth.ResetTTL)
	u.ResetPasswordToken, u.ResetPasswordExpire = digest, &expire
	if err := h.users.UpdateUser(ctx, u); err != nil {
		h.serverError(w, r, "store reset token", err)
		return
	}

	msg := mail.PasswordReset(u.Email, u.FirstName, link(r, "/api/auth/reset-password/"+token))
	if err := h.mailer.Send(ctx, msg); err != nil {
		u.ResetPasswordToken, u.ResetPasswordExpire = "", nil
		if uerr := h.users.UpdateUser(ctx, u); uerr != nil {
			observability.WithTrace(ctx).Warn("auth: failed to clear reset token", "user_id", u.ID, "err", uerr)
		}
		observability.WithTrace(ctx).Error("auth: reset email failed", "user_id", u.ID, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Email could not be sent")
		return
	}
	h.auditAuth(ctx, u.ID, "forgot-password", nil)
	httpjson.Message(w, http.StatusOK, "Reset password email sent")
}

func (h *AccountsHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := r.Context()
	u, err := h.users.GetUserByResetToken(ctx, auth.Digest(r.PathValue("token")), h.now())
	if errors.Is(err, store.ErrNotFound) {
		httpjson.Error(w, http.StatusBadRequest, "Invalid token")
		return
	}
	if err != nil {
		h.serverError(w, r, "lookup reset token", err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		httpjson.Error(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
		return
	}
	if err != nil {
		h.serverError(w, r, "hash password", err)
		return
	}
	u.PasswordHash = hash
	u.ResetPasswordToken, u.ResetPasswordExpire = "", nil
	if err := h.users.UpdateUser(ctx, u); err != nil {
		h.serverError(w, r, "reset password", err)
		return
	}
	h.auditAuth(ctx, u.ID, "reset-password", nil)
	h.sendToken(w, r, http.StatusOK, u)
}

func (h *AccountsHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	httpjson.OK(w, http.StatusOK, viewOf(u, true))
}

func (h *AccountsHandler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	current, _ := auth.UserFromContext(r.Context())
	u := *current
	if v := strings.TrimSpace(req.FirstName); v != "" {
		u.FirstName = v
	}
	if v := strings.TrimSpace(req.LastName); v != "" {
		u.LastName = v
	}
	if v := strings.ToLower(strings.TrimSpace(req.Email)); v != "" {
		if !emailPattern.MatchString(v) {
			httpjson.Error(w, http.StatusBadRequest, "Please enter a valid email")
			return
		}
		u.Email = v
	}
	if err := h.users.UpdateUser(r.Context(), &u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			httpjson.Error(w, http.StatusBadRequest, "Email already registered")
			return
		}
		h.serverError(w, r, "update details", err)
		return
	}
	httpjson.OK(w, http.StatusOK, viewOf(&u, true))
}

func (h *AccountsHandler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := httpjson.Decode(w, r, 0, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	current, _ := auth.UserFromContext(r.Context())
	if !auth.CheckPassword(current.PasswordHash, req.CurrentPassword) {
		httpjson.Error(w, http.StatusUnauthorized, "Password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		httpjson.Error(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
		return
	}
	if err != nil {
		h.serverError(w, r, "hash password", err)
		return
	}
	u := *current
	u.PasswordHash = hash
	if err := h.users.UpdateUser(r.Context(), &u); err != nil {
		h.serverError(w, r, "update password", err)
		return
	}
	h.auditAuth(r.Context(), u.ID, "update-password", nil)
	h.sendToken(w, r, http.StatusOK, &u)
}

func (h *AccountsHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "none",
		Path:     "/",
		Expires:  h.now().Add(10 * time.Second),
		HttpOnly: true,
	})
	h.auditAuth(r.Context(), mustUser(r), "logout", nil)
	httpjson.OK(w, http.StatusOK, struct{}{})
}
