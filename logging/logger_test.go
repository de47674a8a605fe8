package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compliance checks

var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
	_ Logger = (*SwarmLogger)(nil)
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any

		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}

	return entries
}

func TestSwarmLoggerContextualAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: buf, Component: "pool"})

	logger.WithRun("run-1", "writer").WithContext("attempt", 2).Info("packet routed", "recipient", "critic")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "packet routed", entry["msg"])
	assert.Equal(t, "pool", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "writer", entry["proc_name"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "critic", entry["recipient"])
}

func TestSwarmLoggerCloningDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: buf})

	child := logger.WithComponent("agent").WithContext("key", "value")
	_ = child

	logger.Info("parent entry")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "component")
	assert.NotContains(t, entries[0], "key")
}

func TestSwarmLoggerLevelGating(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelError, Format: "json", Output: buf})

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("dropped")
	logger.Error("kept")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "ERROR", entries[0]["level"])
}

func TestSwarmLoggerTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: buf})

	logger.Info("hello", "target", "world")

	output := buf.String()
	assert.Contains(t, output, "msg=hello")
	assert.Contains(t, output, "target=world")
}

func TestSwarmLoggerDefaults(t *testing.T) {
	cfg := DefaultLoggerConfig()

	assert.Equal(t, LogLevelInfo, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	assert.NotNil(t, NewLogger(nil))
}

func TestLogToolCall(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	logger.LogToolCall("fetch_weather", 5*time.Millisecond, true, nil)
	logger.LogToolCall("fetch_weather", time.Millisecond, false, errors.New("boom"))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "Tool execution completed", entries[0]["msg"])
	assert.Equal(t, "fetch_weather", entries[0]["tool_name"])
	assert.Equal(t, true, entries[0]["success"])

	assert.Equal(t, "Tool execution failed", entries[1]["msg"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLogModelCall(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	logger.LogModelCall("gpt-4o", 128, 30*time.Millisecond, true, nil)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Model call completed", entries[0]["msg"])
	assert.Equal(t, "gpt-4o", entries[0]["model"])
	assert.Equal(t, float64(128), entries[0]["token_count"])
}

func TestSlogAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, nil)))

	logger.Info("adapted", "key", "value")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "adapted", entries[0]["msg"])
	assert.Equal(t, "value", entries[0]["key"])
}

func TestNoOpLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		logger := NoOpLogger{}
		logger.Debug("d")
		logger.Info("i", "k", "v")
		logger.Warn("w")
		logger.Error("e")
	})
}
