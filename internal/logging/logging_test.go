package logging_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorinsights/internal/logging"
)

type stubConfig struct {
	level string
	dir   string
}

func (c stubConfig) GetAppName() string      { return "insights-test" }
func (c stubConfig) GetLogLevel() string     { return c.level }
func (c stubConfig) GetLogDirectory() string { return c.dir }
func (c stubConfig) GetLogMaxSizeMB() int    { return 1 }
func (c stubConfig) GetLogMaxBackups() int   { return 1 }
func (c stubConfig) GetLogMaxAgeDays() int   { return 1 }

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	t.Run("respects the level and tags the app", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.NewLogger(stubConfig{level: "info"}, &buf)

		logger.Debug("hidden")
		logger.Info("Refreshed day", slog.String("day", "2024-01-01"))

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, `msg="Refreshed day"`)
		assert.Contains(t, out, "app=insights-test")
		assert.Contains(t, out, "day=2024-01-01")
	})

	t.Run("writes to a file in the log directory", func(t *testing.T) {
		dir := t.TempDir()
		logger := logging.NewLogger(stubConfig{level: "debug", dir: dir}, nil)
		logger.Error("boom")

		data, err := os.ReadFile(filepath.Join(dir, "insights-test.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "boom")
	})
}
