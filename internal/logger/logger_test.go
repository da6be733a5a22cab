package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trendmonster.log")
	Init("debug", "json", FileConfig{Path: path, MaxSizeMB: 1})
	t.Cleanup(func() { defaultLogger = nil })

	Debug("decision %s", "HOLD")
	Info("rebalance %v", true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"decision HOLD"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestInit_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trendmonster.log")
	Init("warn", "json", FileConfig{Path: path, MaxSizeMB: 1})
	t.Cleanup(func() { defaultLogger = nil })

	Info("hidden")
	Warn("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestUninitializedIsNoop(t *testing.T) {
	defaultLogger = nil
	Info("nothing to see %d", 1)
	Error("nothing to see")
}
