package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug", zerolog.InfoLevel))
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("", zerolog.TraceLevel))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("shouty", zerolog.WarnLevel))
}

func TestRotatingFileDefaults(t *testing.T) {
	lj := newRotatingFile("/tmp/x.log", LogConfig{MaxBackups: 3})
	assert.Equal(t, 50, lj.MaxSize)
	assert.Equal(t, 3, lj.MaxBackups)
	assert.Zero(t, lj.MaxAge)
}

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Directory: dir}))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"logger initialized"`)
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUCores)
	assert.NotEmpty(t, info.GoVersion)
}

func TestGetProcessUsage(t *testing.T) {
	usage, err := GetProcessUsage(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), usage.PID)
	assert.Positive(t, usage.Goroutines)
}

func TestGetDiskUsage(t *testing.T) {
	usage, err := GetDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, usage.Total)
	assert.LessOrEqual(t, usage.Free, usage.Total)

	_, err = GetDiskUsage(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
