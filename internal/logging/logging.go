// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps log/slog with the component-scoped logger used across the controller.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses "debug", "info", "warn" or "error". Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Config controls logger construction.
type Config struct {
	Output io.Writer
	Level  Level
	JSON   bool
	// File, when set, receives a plain-text copy of every record.
	File string
	// Prefix is printed before every console line.
	Prefix string
}

// DefaultConfig logs info and above to stderr as text.
func DefaultConfig() Config {
	return Config{
		Output: os.Stderr,
		Level:  LevelInfo,
	}
}

// Logger is a slog.Logger with controller helpers.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds a Logger. A File that cannot be opened falls back to console only.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	if cfg.JSON {
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level.slog()})
	} else {
		console = tint.NewHandler(out, &tint.Options{
			Level:        cfg.Level.slog(),
			TimeFormat:   "15:04:05",
			CustomPrefix: cfg.Prefix,
			NoColor:      !isTerminal(out),
		})
	}

	handlers := []slog.Handler{console}
	var closer io.Closer
	if cfg.File != "" {
		if f, err := openLogFile(cfg.File); err == nil {
			handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Level.slog()}))
			closer = f
		} else {
			fmt.Fprintf(out, "logging: %v\n", err)
		}
	}

	var h slog.Handler = console
	if len(handlers) > 1 {
		h = slogmulti.Fanout(handlers...)
	}
	return &Logger{Logger: slog.New(h), closer: closer}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// With returns a Logger that includes the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// WithComponent tags records with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithError attaches err to subsequent records.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger and slog's default.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// WithComponent returns the default logger tagged with a component.
func WithComponent(name string) *Logger { return Default().WithComponent(name) }

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
