// Package observability provides structured logging for the Dareon server.
//
// It wraps log/slog with trace ID propagation, optional rotated log files and
// HTTP request logging so every line emitted while serving a request can be
// joined on trace_id.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dareon-io/dareon2/common/redact"
	"github.com/dareon-io/dareon2/common/trace"
)

// Options configures Setup.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" or "text" for the console handler.
	Format string
	// Dir, when set, receives combined.log (all levels) and error.log (ERROR
	// only), both JSON and rotated.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	// Console defaults to os.Stdout. Set Quiet to drop console output.
	Console io.Writer
	Quiet   bool
}

// ParseLevel maps a level name to a slog.Level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger described by opts and installs it as the slog
// default. The returned closer flushes and closes any log files.
func Setup(opts Options) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(opts.Level)
	var handlers []slog.Handler
	var closers multiCloser

	if !opts.Quiet {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		hopts := &slog.HandlerOptions{Level: lvl}
		if opts.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(console, hopts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, hopts))
		}
	}

	if opts.Dir != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 5
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = 5
		}
		combined := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "combined.log"),
			MaxSize:    maxSize,
			MaxBackups: backups,
		}
		errorsOnly := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "error.log"),
			MaxSize:    maxSize,
			MaxBackups: backups,
		}
		closers = append(closers, combined, errorsOnly)
		handlers = append(handlers,
			slog.NewJSONHandler(combined, &slog.HandlerOptions{Level: lvl}),
			slog.NewJSONHandler(errorsOnly, &slog.HandlerOptions{Level: slog.LevelError}),
		)
	}

	logger := slog.New(fanout(handlers))
	slog.SetDefault(logger)
	return logger, closers
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}

// RedactSecrets replaces known-sensitive values in a log message with "[REDACTED]".
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}

// fanoutHandler sends each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return fanoutHandler(hs)
}

func (f fanoutHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
