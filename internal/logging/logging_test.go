package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "json", Level: "info", Writer: &buf})
	log.Debug("hidden")
	log.Info("task assigned", "task_id", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "task assigned", line["msg"])
	assert.EqualValues(t, 3, line["task_id"])
}

func TestColorFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "color", Writer: &buf}).Warn("lenient merge")
	assert.Contains(t, buf.String(), "lenient merge")
}
