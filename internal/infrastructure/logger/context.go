package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type (
	loggerKey struct{}
	runKey    struct{}
)

func ContextWithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return l
		}
	}
	return L()
}

// WithRun gives ctx a run id and tags its logger with it. A ctx that already
// carries one is returned unchanged, so operations chained by "all" share it.
func WithRun(ctx context.Context) context.Context {
	if _, ok := runID(ctx); ok {
		return ctx
	}
	id := newRunID(time.Now())
	ctx = context.WithValue(ctx, runKey{}, id)
	return ContextWithLogger(ctx, FromContext(ctx).With("run_id", id))
}

func WithOperation(ctx context.Context, operation string) context.Context {
	ctx = WithRun(ctx)
	return ContextWithLogger(ctx, FromContext(ctx).With("operation", operation))
}

func WithHost(ctx context.Context, host string) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With("host", host))
}

func WithStep(ctx context.Context, step string) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With("step", step))
}

func runID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runKey{}).(string)
	return id, ok
}

// newRunID is the wall-clock time of day plus six random hex digits, e.g. 142501-9f03c2.
func newRunID(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return now.Format("150405") + "-" + hex.EncodeToString(b)
}
