// Package logger configures slog for canvas services: JSON in deployment,
// tinted console output for local runs.
package logger

import (
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger so Error can attach a stack trace. Services log
// key-value pairs directly; request- and batch-scoped ids travel as
// arguments, not logger state.
type Logger struct {
	*slog.Logger
}

// New builds a logger for the given level and format. Unknown levels fall
// back to info, unknown formats to the console handler.
func New(level, format string) *Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Error logs at error level with the current stack attached. Error-level
// records here mean infrastructure trouble, and the stack tells the pager
// which call path hit it; domain failures log at warn without one.
func (l *Logger) Error(msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.Error(msg, args...)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
