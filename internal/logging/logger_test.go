package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/config"
	"boletodesk/internal/logging"
	"boletodesk/internal/services"
)

func TestNewFromConfigWritesRotatingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	var console bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, &console)
	require.NoError(t, err)
	logger.Info("started", logging.String("k", "v"))
	assert.Contains(t, console.String(), "started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "boletodesk.log"))
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &entry))
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "v", entry["k"])
	assert.Contains(t, entry, "ts")
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	require.NoError(t, err)

	logging.NewComponentLogger(logger, "workflow").Info("message without caller", logging.String("label", "OP 1"))

	line := buf.String()
	assert.NotContains(t, line, ".go:")
	assert.Contains(t, line, "INFO workflow: message without caller")
	assert.Contains(t, line, `label="OP 1"`)
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Console: &buf})
	require.NoError(t, err)

	logger.Debug("message with caller")
	assert.Contains(t, buf.String(), ".go:")
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", Console: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithOperationID(ctx, "op-7")
	ctx = services.WithStage(ctx, "process")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Console: &buf})
	require.NoError(t, err)

	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry[logging.FieldSessionID])
	assert.Equal(t, "op-7", entry[logging.FieldOperationID])
	assert.Equal(t, "process", entry[logging.FieldStage])
	assert.Equal(t, "req-xyz", entry[logging.FieldCorrelationID])
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	assert.False(t, logger.Enabled(context.Background(), 8))
	logging.WithContext(context.Background(), nil).Info("ignored")
	assert.True(t, strings.HasPrefix(logging.Error(nil).Value.String(), "<nil>"))
}
