package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "warn"
	log := NewWithWriter(cfg, &buf)

	log.Info("hidden")
	log.Warn("shown", zap.String("url", "a.glb"))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "a.glb")
}

func TestFileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plinth.log")
	cfg := DefaultConfig()
	cfg.Console = false
	cfg.File = path
	cfg.Compress = false
	log := New(cfg)

	log.Debug("not at info")
	log.Error("model load failed", zap.String("url", "chair.glb"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ERROR")
	assert.Contains(t, lines[0], "chair.glb")
}

func TestNoCoresIsNop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console = false
	log := New(cfg)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}
