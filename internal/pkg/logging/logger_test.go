package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewLogger(Options{Service: "minishop-inventory", Env: "test", Level: "warn", File: path})
	require.NoError(t, err)

	WithTrace(logger, SystemTraceID, "").Warn("stock_below_reorder_level")
	logger.Info("filtered_out")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "stock_below_reorder_level", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "minishop-inventory", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "system", entry["trace_id"])
	assert.Equal(t, "unknown", entry["span_id"])
	assert.Contains(t, entry, "ts")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Options{Level: "loud"})
	assert.Error(t, err)
}
