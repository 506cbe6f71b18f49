package navgraph

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/pathfind"
	"github.com/hupe1980/navgraph/regionstore"
)

// Logger wraps slog.Logger with navgraph-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithRegion adds a region field to the logger.
func (l *Logger) WithRegion(r handle.RegionHandle) *Logger {
	return &Logger{
		Logger: l.Logger.With("region", uint32(r)),
	}
}

// LogSave logs a save cycle. Cancellation is not an error.
func (l *Logger) LogSave(ctx context.Context, stats regionstore.SaveStats, err error) {
	switch {
	case isCanceled(err):
		l.DebugContext(ctx, "save interrupted",
			"regions", stats.Regions,
			"error", err,
		)
	case err != nil:
		l.WarnContext(ctx, "save incomplete",
			"regions", stats.Regions,
			"failed", stats.Failed,
			"error", err,
		)
	default:
		l.DebugContext(ctx, "save completed",
			"regions", stats.Regions,
			"nodes", stats.Nodes,
			"bytes", stats.Bytes,
			"elapsed", stats.Elapsed,
		)
	}
}

// LogFrontier logs a frontier load or save.
func (l *Logger) LogFrontier(ctx context.Context, op string, nodes int, err error) {
	switch {
	case isCanceled(err):
		l.DebugContext(ctx, "frontier "+op+" interrupted", "error", err)
	case err != nil:
		l.WarnContext(ctx, "frontier "+op+" failed", "error", err)
	default:
		l.DebugContext(ctx, "frontier "+op, "nodes", nodes)
	}
}

// LogPageOut logs regions evicted from memory.
func (l *Logger) LogPageOut(ctx context.Context, evicted, resident int) {
	if evicted == 0 {
		return
	}
	l.InfoContext(ctx, "regions paged out",
		"evicted", evicted,
		"resident", resident,
	)
}

// LogPath logs the outcome of a path request.
func (l *Logger) LogPath(ctx context.Context, req *pathfind.Request) {
	attrs := []any{
		"request", req.ID,
		"status", req.Status(),
		"expanded", req.Progress().Expanded(),
		"elapsed", req.Elapsed(),
	}
	if t := req.EffectiveTarget(); t != req.Target {
		attrs = append(attrs, "substitute", t)
	}
	switch req.Status() {
	case pathfind.StatusSucceeded:
		p, _ := req.Result()
		l.DebugContext(ctx, "path delivered", append(attrs, "steps", p.Steps())...)
	case pathfind.StatusCanceled:
		l.DebugContext(ctx, "path canceled", attrs...)
	default:
		l.InfoContext(ctx, "path failed", append(attrs, "error", req.Err())...)
	}
}

// LogBlock logs nodes removed from the graph.
func (l *Logger) LogBlock(ctx context.Context, at handle.NodeHandle, blocked int) {
	l.DebugContext(ctx, "nodes blocked",
		"node", at,
		"blocked", blocked,
	)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
