// Package observability sets up process logging and carries request scoped
// log fields through a context.
package observability

import (
	"context"
	"io"
	"log/slog"

	"git.home.luguber.info/inful/previewer/internal/config"
	"git.home.luguber.info/inful/previewer/internal/logfields"
)

// LogContext holds the fields attached to every record logged with a
// context that carries it.
type LogContext struct {
	ProjectID string
	TraceID   string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithProjectID adds a project id to the context.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	lc := extractLogContext(ctx)
	lc.ProjectID = projectID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithTraceID adds a trace id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	lc := extractLogContext(ctx)
	lc.TraceID = traceID
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the structured log context from ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func extractLogContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func (lc LogContext) attrs() []slog.Attr {
	var attrs []slog.Attr
	if lc.ProjectID != "" {
		attrs = append(attrs, logfields.ProjectID(lc.ProjectID))
	}
	if lc.TraceID != "" {
		attrs = append(attrs, logfields.TraceID(lc.TraceID))
	}
	return attrs
}

// ContextHandler adds the LogContext fields of the record's context.
type ContextHandler struct {
	slog.Handler
}

// Handle implements slog.Handler.
func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := extractLogContext(ctx).attrs(); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds the process logger from cfg. verbose forces debug level.
// Every record carries the process role.
func NewLogger(cfg config.LogConfig, w io.Writer, role string, verbose bool) *slog.Logger {
	level := cfg.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(ContextHandler{h})
	if role != "" {
		logger = logger.With(slog.String("role", role))
	}
	return logger
}
