package vdego

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vdego-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// WithOffset adds a point offset field to the logger.
func (l *Logger) WithOffset(offset uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("offset", offset),
	}
}

// LogOpen logs opening a segment.
func (l *Logger) LogOpen(ctx context.Context, dir, collection string, created bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"dir", dir,
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "segment opened",
			"dir", dir,
			"collection", collection,
			"created", created,
		)
	}
}

// LogUpsert logs a vector or payload write.
func (l *Logger) LogUpsert(ctx context.Context, offset uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"offset", offset,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"offset", offset,
		)
	}
}

// LogSearch logs a search batch.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"queries", queries,
			"k", k,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, offset uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"offset", offset,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"offset", offset,
		)
	}
}

// LogSnapshot logs a snapshot or flush.
func (l *Logger) LogSnapshot(ctx context.Context, collection string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"collection", collection,
		)
	}
}

// LogClose logs closing a segment.
func (l *Logger) LogClose(ctx context.Context, collection string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "segment closed",
			"collection", collection,
		)
	}
}

// LogBackup logs a backup run.
func (l *Logger) LogBackup(ctx context.Context, id string, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"backup_id", id,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			"backup_id", id,
			"files", files,
		)
	}
}
