package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Config struct {
	Level     slog.Level
	Format    Format
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: FormatText, Output: os.Stderr}
}

// ConfigFromEnv reads <prefix>_LOG_LEVEL, <prefix>_DEBUG and <prefix>_LOG_FORMAT.
// <prefix>_DEBUG wins over the level; debug output carries source locations.
func ConfigFromEnv(prefix string) *Config {
	cfg := DefaultConfig()
	if raw := os.Getenv(prefix + "_LOG_LEVEL"); raw != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(raw)); err == nil {
			cfg.Level = level
		}
	}
	if os.Getenv(prefix+"_DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	cfg.AddSource = cfg.Level <= slog.LevelDebug
	if Format(strings.ToLower(os.Getenv(prefix+"_LOG_FORMAT"))) == FormatJSON {
		cfg.Format = FormatJSON
	}
	return cfg
}

type Logger struct {
	*slog.Logger
}

var process atomic.Pointer[Logger]

// Init installs the process-wide logger returned by L, replacing any earlier one.
func Init(cfg *Config) *Logger {
	l := New(cfg)
	process.Store(l)
	return l
}

func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	if cfg.Format == FormatJSON {
		return &Logger{slog.New(slog.NewJSONHandler(out, opts))}
	}
	return &Logger{slog.New(slog.NewTextHandler(out, opts))}
}

func L() *Logger {
	if l := process.Load(); l != nil {
		return l
	}
	process.CompareAndSwap(nil, New(nil))
	return process.Load()
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

func (l *Logger) Enabled(level slog.Level) bool {
	return l.Logger.Enabled(context.Background(), level)
}

// For code without a context at hand.

func Debug(msg string, args ...any) { L().Log(context.Background(), slog.LevelDebug, msg, args...) }
func Info(msg string, args ...any)  { L().Log(context.Background(), slog.LevelInfo, msg, args...) }
func Warn(msg string, args ...any)  { L().Log(context.Background(), slog.LevelWarn, msg, args...) }
func Error(msg string, args ...any) { L().Log(context.Background(), slog.LevelError, msg, args...) }
