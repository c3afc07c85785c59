// Package logging configures runtime JSONL logging and console progress output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "RSTD_LOG_LEVEL"
	EnvLogNoColor = "RSTD_LOG_NOCOLOR"
)

// Options selects log verbosity and where console progress lines go.
type Options struct {
	Level   string
	Console io.Writer
}

// Runtime bundles the configured loggers and the log file lifecycle.
type Runtime struct {
	Logger  *slog.Logger
	Console zerolog.Logger
	Path    string
	closer  io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger rooted at the resolved state path and a console
// logger writing human-readable lines to opts.Console.
func New(opts Options) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	level := ParseLevel(opts.Level)
	if lvl, ok := lookupLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	return Runtime{
		Logger:  logger,
		Console: NewConsole(opts.Console),
		Path:    path,
		closer:  f,
	}, nil
}

// NewConsole returns a zerolog console logger, or a disabled one for a nil writer.
func NewConsole(w io.Writer) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	noColor, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor)))
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	if lvl, ok := lookupLevel(raw); ok {
		return lvl
	}
	return slog.LevelInfo
}

func lookupLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "rstd", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "rstd", "log.jsonl"), nil
}
