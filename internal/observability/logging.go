package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/showroom/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	DeviceID  string
	RequestID string
	Job       string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithDeviceID adds the device id to the context.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	lc := extractLogContext(ctx)
	lc.DeviceID = deviceID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRequestID adds an HTTP request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	lc := extractLogContext(ctx)
	lc.RequestID = requestID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithJob adds a scheduled job name to the context.
func WithJob(ctx context.Context, job string) context.Context {
	lc := extractLogContext(ctx)
	lc.Job = job
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the structured log context from the provided context.
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

func contextAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.DeviceID != "" {
		attrs = append(attrs, logfields.DeviceID(lc.DeviceID))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, logfields.RequestID(lc.RequestID))
	}
	if lc.Job != "" {
		attrs = append(attrs, logfields.Job(lc.Job))
	}
	return attrs
}

// ContextHandler decorates records with the LogContext carried by the
// context passed to the *Context logging calls.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: next}
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
