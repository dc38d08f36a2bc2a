package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")

	l.Info("hidden %d", 1)
	l.Debug("hidden too")
	assert.Empty(t, buf.String())

	l.Warn("visible %s", "warning")
	assert.Contains(t, buf.String(), "visible warning")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "json")

	l.Debug("user %s joined room %s", "u1", "r1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "user u1 joined room r1", entry["msg"])
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, "INFO", parseLevel("").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
	assert.Equal(t, "ERROR", parseLevel("ERROR").String())
}
