package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Options controls how New builds the handler chain.
type Options struct {
	// JSON selects the JSON handler used for log aggregation.
	JSON  bool
	Level slog.Level
	Out   io.Writer
}

// OptionsFromEnv picks JSON output inside Kubernetes and for the prod/dev
// environments, and coloured text with debug level everywhere else.
func OptionsFromEnv() Options {
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	env := os.Getenv("ENV")

	if inK8s || env == "prod" || env == "dev" {
		return Options{JSON: true, Level: slog.LevelInfo, Out: os.Stdout}
	}
	return Options{Level: slog.LevelDebug, Out: os.Stdout}
}

// New creates a slog.Logger whose records carry trace_id/span_id when the
// context holds a valid OTel span.
func New(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: true,
		})
	} else {
		handler = &colorTextHandler{handler: slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level})}
	}
	return slog.New(&traceContextHandler{handler: handler})
}

func NewWithServiceContext(serviceName, version string) *slog.Logger {
	return New(OptionsFromEnv()).With(
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("environment", os.Getenv("ENV")),
	)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return New(Options{Out: io.Discard, Level: slog.LevelError})
}

// colorTextHandler paints ERROR messages red
type colorTextHandler struct {
	handler slog.Handler
}

func (h *colorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelError {
		return h.handler.Handle(ctx, r)
	}

	colored := slog.NewRecord(r.Time, r.Level, fmt.Sprintf("\x1b[31m%s\x1b[0m", r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		colored.AddAttrs(a)
		return true
	})
	return h.handler.Handle(ctx, colored)
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	return &colorTextHandler{handler: h.handler.WithGroup(name)}
}

type traceContextHandler struct {
	handler slog.Handler
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, r)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}
