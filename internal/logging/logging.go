package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NoLoggingLevel is higher than any standard level and disables a sink.
const NoLoggingLevel = slog.Level(100)

// Config selects log sinks and their levels.
type Config struct {
	ConsoleLevel string `yaml:"console_level" validate:"omitempty,oneof=debug info warn error off"`
	FileLevel    string `yaml:"file_level" validate:"omitempty,oneof=debug info warn error off"`
	FilePath     string `yaml:"file_path"`
	NoColor      bool   `yaml:"no_color"`
}

// ParseLevel maps a config level name onto a slog level. The empty string
// means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off", "none":
		return NoLoggingLevel, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// New builds a logger writing colorized text to stdout and, when FilePath is
// set, to a rotating log file. The returned closer releases the file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	return newWithConsole(cfg, os.Stdout)
}

func newWithConsole(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	consoleLevel, err := ParseLevel(cfg.ConsoleLevel)
	if err != nil {
		return nil, nil, err
	}
	fileLevel, err := ParseLevel(cfg.FileLevel)
	if err != nil {
		return nil, nil, err
	}

	handler := &MultiLevelHandler{}
	var closer io.Closer = nopCloser{}

	if consoleLevel != NoLoggingLevel && console != nil {
		handler.consoleHandler = tint.NewHandler(console, &tint.Options{
			Level:      consoleLevel,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		})
	}

	if cfg.FilePath != "" && fileLevel != NoLoggingLevel {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log folder: %w", err)
		}
		lumber := &lumberjack.Logger{
			Filename: cfg.FilePath,
			Compress: true,
		}
		handler.fileHandler = tint.NewHandler(lumber, &tint.Options{
			Level:      fileLevel,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
		closer = lumber
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MultiLevelHandler fans records out to a console and a file handler, each
// filtering on its own level.
type MultiLevelHandler struct {
	consoleHandler slog.Handler
	fileHandler    slog.Handler
}

func (h *MultiLevelHandler) handlers() []slog.Handler {
	out := make([]slog.Handler, 0, 2)
	if h.consoleHandler != nil {
		out = append(out, h.consoleHandler)
	}
	if h.fileHandler != nil {
		out = append(out, h.fileHandler)
	}
	return out
}

func (h *MultiLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sub := range h.handlers() {
		if sub.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLevelHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, sub := range h.handlers() {
		if sub.Enabled(ctx, r.Level) {
			if err := sub.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &MultiLevelHandler{}
	if h.consoleHandler != nil {
		out.consoleHandler = h.consoleHandler.WithAttrs(attrs)
	}
	if h.fileHandler != nil {
		out.fileHandler = h.fileHandler.WithAttrs(attrs)
	}
	return out
}

func (h *MultiLevelHandler) WithGroup(name string) slog.Handler {
	out := &MultiLevelHandler{}
	if h.consoleHandler != nil {
		out.consoleHandler = h.consoleHandler.WithGroup(name)
	}
	if h.fileHandler != nil {
		out.fileHandler = h.fileHandler.WithGroup(name)
	}
	return out
}
