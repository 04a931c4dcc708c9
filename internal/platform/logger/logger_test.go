package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.Debug("hidden")
	log.Info("signup decided", "outcome", "verified")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "signup decided", entry["msg"])
	assert.Equal(t, "verified", entry["outcome"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "console")

	log.Debug("console line", "outcome", "token_missing")

	assert.Contains(t, buf.String(), "console line")
	assert.Contains(t, buf.String(), "token_missing")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("anything"))
}
