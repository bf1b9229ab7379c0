package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{in: "debug", want: slog.LevelDebug, wantOK: true},
		{in: "INFO", want: slog.LevelInfo, wantOK: true},
		{in: " warn ", want: slog.LevelWarn, wantOK: true},
		{in: "Error", want: slog.LevelError, wantOK: true},
		{in: "", want: slog.LevelInfo, wantOK: false},
		{in: "verbose", want: slog.LevelInfo, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, "ParseLevel(%q)", tt.in)
		assert.Equal(t, tt.wantOK, ok, "ParseLevel(%q) ok", tt.in)
	}
}

func TestTrimPathDepth(t *testing.T) {
	assert.Equal(t, "b/c/d.go", trimPathDepth("a/b/c/d.go", 3))
	assert.Equal(t, "d.go", trimPathDepth("d.go", 3))
}

func TestNewLoggerProductionJSON(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	l := newLogger(&buf, "", true)
	l.Debug("hidden")
	l.Info("visible", "flow_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "output: %q", buf.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	caller, _ := entry["caller"].(string)
	assert.Contains(t, caller, "logger_test.go")
}

func TestNewLoggerLevelOverride(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	l := newLogger(&buf, "ERROR", false)
	l.Info("dropped")
	l.With("component", "loopback").Error("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "component=loopback")
	assert.Contains(t, out, "caller=")
}
