// Package logging builds the application's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigProvider is the subset of configuration the logger needs.
type ConfigProvider interface {
	GetAppName() string
	GetLogLevel() string
	GetLogDirectory() string
	GetLogMaxSizeMB() int
	GetLogMaxBackups() int
	GetLogMaxAgeDays() int
}

// ParseLevel maps a configured level name to a slog level. Unknown names fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a text logger writing to stdout and, when a log directory
// is configured, to a size-rotated file in that directory. A nil extra writer
// is ignored.
func NewLogger(cfg ConfigProvider, extra io.Writer) *slog.Logger {
	writers := []io.Writer{os.Stdout}

	if dir := cfg.GetLogDirectory(); dir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(dir, cfg.GetAppName()+".log"),
			MaxSize:    cfg.GetLogMaxSizeMB(),
			MaxBackups: cfg.GetLogMaxBackups(),
			MaxAge:     cfg.GetLogMaxAgeDays(),
			Compress:   true,
		})
	}
	if extra != nil {
		writers = append(writers, extra)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(cfg.GetLogLevel()),
	})
	return slog.New(handler).With(slog.String("app", cfg.GetAppName()))
}
