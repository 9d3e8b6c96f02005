// Package logging wraps log/slog with the configuration surface the rest of
// the application expects: level and format from env-driven config, optional
// file output, and per-component child loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds logging configuration.
type Config struct {
	Level      string `json:"level"`       // trace|debug|info|warn|error
	Format     string `json:"format"`      // "json" or "text"
	Output     string `json:"output"`      // "stdout", "stderr", or file path
	EnableFile bool   `json:"enable_file"` // mirror output to FilePath
	FilePath   string `json:"file_path"`
}

// DefaultConfig returns sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// Logger is a thin wrapper so call sites depend on this package, not slog
// directly. Child loggers carry a component attribute.
type Logger struct {
	s    *slog.Logger
	file *os.File
}

// New builds a Logger from config. File setup failures are returned rather
// than silently dropped; callers may fall back to stdout.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	var file *os.File

	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := openLogFile(cfg.Output)
		if err != nil {
			return nil, err
		}
		file = f
		writer = f
	}

	if cfg.EnableFile && cfg.FilePath != "" && file == nil {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		file = f
		writer = io.MultiWriter(writer, f)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{s: slog.New(handler), file: file}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{s: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...), file: l.file}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.With(slog.String("component", name))
}

func (l *Logger) Debug(msg string, args ...any) { l.s.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.s.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Error(msg, args...) }

// Timed logs msg at info level with a duration attribute. Handy for the
// generation pipeline where latency matters.
func (l *Logger) Timed(msg string, start time.Time, args ...any) {
	args = append(args, slog.Duration("duration", time.Since(start)))
	l.s.Info(msg, args...)
}

// Close flushes and closes the log file if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
