package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, 10*time.Second, cfg.StopTimeout)
	assert.Equal(t, 2*time.Second, cfg.SpawnGrace)
	assert.Equal(t, 2*time.Hour, cfg.PurgeAfter)
	assert.Equal(t, "* * * * *", cfg.RecordingCron)
	assert.True(t, cfg.RetryError)
	assert.Equal(t, filepath.Join(cfg.DataDir, "dvrd.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "library"), cfg.LibraryDir)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dataDir: /srv/dvr
libraryDir: /srv/media
logLevel: debug
recorder:
  ffmpegBin: /usr/local/bin/ffmpeg
  stopTimeout: 5s
  retryError: false
scheduler:
  recordingCron: "*/2 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/dvr", cfg.DataDir)
	assert.Equal(t, "/srv/media", cfg.LibraryDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.False(t, cfg.RetryError)
	assert.Equal(t, "*/2 * * * *", cfg.RecordingCron)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DVRD_DATA", "/tmp/dvr-env")
	t.Setenv("DVRD_RETRY_ERROR", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dvr-env", cfg.DataDir)
	assert.False(t, cfg.RetryError)
	assert.Equal(t, filepath.Join("/tmp/dvr-env", "dvrd.db"), cfg.DBPath)
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recorder:\n  stopTimeout: soon\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.StopTimeout = 0
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.DataDir = ""
	assert.Error(t, Validate(cfg))

	assert.NoError(t, Validate(Defaults()))
}
