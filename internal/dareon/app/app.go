// Package app assembles the Dareon server from its configuration and runs
// it until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dareon-io/dareon2/common/crypto"
	"github.com/dareon-io/dareon2/common/trace"
	"github.com/dareon-io/dareon2/internal/dareon/api"
	"github.com/dareon-io/dareon2/internal/dareon/assistant"
	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/auth"
	"github.com/dareon-io/dareon2/internal/dareon/config"
	"github.com/dareon-io/dareon2/internal/dareon/files"
	"github.com/dareon-io/dareon2/internal/dareon/integrations"
	"github.com/dareon-io/dareon2/internal/dareon/mail"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
	"github.com/dareon-io/dareon2/internal/dareon/ratelimit"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// App is a wired Dareon server.
type App struct {
	cfg           *config.Config
	logger        *slog.Logger
	store         *store.Store
	server        *Server
	globalLimit   *ratelimit.Limiter
	commandLimit  *ratelimit.Limiter
	pruneInterval time.Duration
}

// New opens the store and wires every service and route. cfg must already
// be validated.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	logger.Info("opening database", "driver", cfg.Database.Driver)
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	recorder := audit.Multi{audit.NewSlogRecorder(logger), audit.NewStoreRecorder(st)}
	fileSvc := files.NewService(cfg.Storage.Dir, st, st)
	intSvc := integrations.NewService(st, sealer)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpire)
	guard := auth.NewGuard(issuer, st)
	mailer := mail.NewLogMailer(logger, cfg.Mail.FromName, cfg.Mail.FromEmail)

	a := &App{
		cfg:           cfg,
		logger:        logger,
		store:         st,
		server:        NewServer(st),
		globalLimit:   ratelimit.New(cfg.RateLimit.GlobalRequests, cfg.RateLimit.GlobalWindow),
		commandLimit:  ratelimit.New(cfg.RateLimit.CommandRequests, cfg.RateLimit.CommandWindow),
		pruneInterval: cfg.Server.PruneInterval,
	}
	a.server.readTimeout = cfg.Server.ReadTimeout
	a.server.writeTimeout = cfg.Server.WriteTimeout
	a.server.shutdownTimeout = cfg.Server.ShutdownTimeout

	routes := []api.Registrar{
		api.NewAssistantHandler(assistant.NewResolver(nil), assistant.NewExecutor(fileSvc, intSvc), st, recorder, a.commandLimit),
		api.NewFilesHandler(fileSvc, recorder),
		api.NewIntegrationsHandler(intSvc, recorder),
		api.NewAccountsHandler(st, issuer, mailer, recorder, api.AccountsOptions{
			CookieTTL: cfg.Auth.CookieExpire,
			Secure:    cfg.Production(),
		}),
	}
	for _, r := range routes {
		r.Register(a.server.Mux(), guard)
	}

	// Innermost first: the API limiter sees the trace id and its rejections
	// are logged like any other response.
	a.server.Use(apiOnly(a.globalLimit.Middleware(ratelimit.ClientIP)))
	a.server.Use(observability.Recover)
	a.server.Use(observability.RequestLogger(logger))
	a.server.Use(trace.Middleware)
	return a, nil
}

// apiOnly applies mw to /api/ requests and passes everything else through.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.server }

// Run listens on the configured port and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln alongside the background pruner. Both
// stop when ctx is cancelled or either fails.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx, ln) })
	g.Go(func() error {
		a.pruneLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (a *App) pruneLoop(ctx context.Context) {
	interval := a.pruneInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.prune(ctx)
		}
	}
}

// prune drops expired one-time tokens and idle rate-limit buckets.
func (a *App) prune(ctx context.Context) {
	n, err := a.store.ClearExpiredTokens(ctx, time.Now())
	if err != nil {
		a.logger.Warn("prune: clear expired tokens", "err", err)
	}
	a.logger.Debug("prune complete",
		"expired_tokens", n,
		"global_buckets", a.globalLimit.Prune(),
		"command_buckets", a.commandLimit.Prune(),
	)
}

// Close releases the store.
func (a *App) Close() error {
	a.logger.Info("closing database")
	return a.store.Close()
}
