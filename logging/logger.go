package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level is a small enum for user-facing level configuration decoupled from
// slog's numeric levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info for unknown
// values.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the minimal logging contract the orchestration core depends on.
// Callers may supply any implementation; New builds a slog-backed one.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config controls construction of the slog-backed logger.
type Config struct {
	Level     Level
	Format    string // "json" (default) or "text"
	Output    io.Writer
	AddSource bool
}

// New builds a slog-backed Logger. A nil config yields JSON output at info
// level on stdout.
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return FromSlog(slog.New(h))
}

// FromSlog adapts an existing *slog.Logger to the Logger interface.
func FromSlog(l *slog.Logger) Logger { return slogLogger{l} }

// Default returns a Logger over slog.Default().
func Default() Logger { return FromSlog(slog.Default()) }

// WithTurn returns a Logger that stamps every entry with the turn and client
// identifiers. Only slog-backed loggers gain the attributes; anything else is
// returned unchanged.
func WithTurn(l Logger, turnID, clientID string) Logger {
	if sl, ok := l.(slogLogger); ok {
		return slogLogger{sl.l.With("turn_id", turnID, "client_id", clientID)}
	}
	return l
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// NoOpLogger discards everything. The default for components constructed
// without an explicit logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}
