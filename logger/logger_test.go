package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	log, err := New(Config{Level: "debug", Format: "json", OutputFile: path})
	require.NoError(t, err)

	log.Debug("evicted page")
	require.NoError(t, log.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "evicted page", entry["msg"])
	assert.Equal(t, "pagecache", entry["service"])
}

func TestNew_LevelFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	log, err := New(Config{Level: "chatty", Format: "console", OutputFile: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), "shown")
	assert.Contains(t, string(content), "INFO")
}

func TestNew_BadOutputFile(t *testing.T) {
	_, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "dir", "cache.log")})
	assert.Error(t, err)
}
