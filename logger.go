package bucketcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the operation-specific helpers the cache
// calls on its hot and maintenance paths.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps an existing slog.Handler.
func NewLogger(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// NewTextLogger returns a Logger writing human-readable lines to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger returns a Logger writing structured JSON lines to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything logged to it.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))
}

func (l *Logger) WithKey(k BlockKey) *Logger {
	return &Logger{Logger: l.Logger.With("file_id", k.FileID, "offset", k.Offset)}
}

// LogAdmit records the outcome of a Cache() admission attempt.
func (l *Logger) LogAdmit(ctx context.Context, k BlockKey, length int, err error) {
	log := l.WithKey(k)
	if err != nil {
		log.ErrorContext(ctx, "admit failed", "length", length, "error", err)
		return
	}
	log.DebugContext(ctx, "admitted", "length", length)
}

// LogEvictionRun records the outcome of one freeSpace() pass.
func (l *Logger) LogEvictionRun(ctx context.Context, bytesFreed int64, entriesFreed int) {
	l.InfoContext(ctx, "eviction run complete", "bytes_freed", bytesFreed, "entries_freed", entriesFreed)
}

// LogDisable records that the cache disabled itself after sustained I/O
// errors.
func (l *Logger) LogDisable(ctx context.Context, reason error) {
	l.WarnContext(ctx, "cache disabled after sustained I/O errors", "error", reason)
}
