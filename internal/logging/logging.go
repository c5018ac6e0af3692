// Package logging builds the process logger and carries it through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

type config struct {
	debug   bool
	format  string
	console io.Writer
	file    io.Writer
	quiet   bool
}

// Option configures New.
type Option func(*config)

// WithDebug lowers the level to debug and adds source locations.
func WithDebug() Option {
	return func(c *config) { c.debug = true }
}

// WithFormat selects "text" or "json" for the file handler. The console
// handler is always text.
func WithFormat(format string) Option {
	return func(c *config) { c.format = format }
}

// WithConsole replaces stderr as the console destination.
func WithConsole(w io.Writer) Option {
	return func(c *config) { c.console = w }
}

// WithFile adds a second destination, usually a log file.
func WithFile(w io.Writer) Option {
	return func(c *config) { c.file = w }
}

// WithQuiet drops the console handler.
func WithQuiet() Option {
	return func(c *config) { c.quiet = true }
}

// New returns a logger that writes to every configured destination.
func New(opts ...Option) *slog.Logger {
	cfg := &config{format: "text", console: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.debug,
	}

	var handlers []slog.Handler
	if !cfg.quiet && cfg.console != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.console, handlerOpts))
	}
	if cfg.file != nil {
		handlers = append(handlers, newHandler(cfg.file, cfg.format, handlerOpts))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// OpenFile opens path for appending, creating parent directories.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

type contextKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// With returns a context whose logger carries the extra attributes.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// Err is the attribute used for errors.
func Err(err error) slog.Attr {
	return slog.Any("err", err)
}
