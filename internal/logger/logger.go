package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

var (
	globalLogger *slog.Logger
	errorLogger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	verboseMode  bool
)

// Init initializes the global logger. In verbose mode everything from debug
// up is written to stderr; otherwise only errors are.
func Init(verbose bool) {
	InitWithWriter(verbose, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(verbose bool, w io.Writer) {
	verboseMode = verbose

	if verbose {
		globalLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		globalLogger = slog.New(&silentHandler{})
	}
	errorLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelError}))
	slog.SetDefault(globalLogger)
}

// silentHandler discards all log messages when verbose mode is disabled
type silentHandler struct{}

func (h *silentHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return false
}

func (h *silentHandler) Handle(_ context.Context, _ slog.Record) error {
	return nil
}

func (h *silentHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *silentHandler) WithGroup(_ string) slog.Handler {
	return h
}

func Debug(msg string, args ...any) {
	if verboseMode {
		globalLogger.Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if verboseMode {
		globalLogger.Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if verboseMode {
		globalLogger.Warn(msg, args...)
	}
}

// Error always logs, regardless of verbose mode.
func Error(msg string, args ...any) {
	if verboseMode {
		globalLogger.Error(msg, args...)
		return
	}
	errorLogger.Error(msg, args...)
}

// With returns a logger carrying args that honours the verbose setting.
func With(args ...any) *slog.Logger {
	if !verboseMode || globalLogger == nil {
		return slog.New(&silentHandler{})
	}
	return globalLogger.With(args...)
}

func IsVerbose() bool {
	return verboseMode
}
