package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	log, cleanup, err := newLogger(Options{Level: "info"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("order filled", zap.String("owner", "alice"))
	cleanup()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "order filled", entry["msg"])
	assert.Equal(t, "alice", entry["owner"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry, "ts")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.log")
	var buf bytes.Buffer
	log, cleanup, err := newLogger(Options{Level: "warn", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	log.Info("skipped")
	log.Warn("withdrawal rejected", zap.String("owner", "bob"))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "withdrawal rejected")
	assert.NotContains(t, string(data), "skipped")
	assert.Contains(t, buf.String(), "withdrawal rejected")
}

func TestBadLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}
