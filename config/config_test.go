package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsUsableAsIs(t *testing.T) {
	cfg := Default()
	assert.Positive(t, cfg.WorkerPoolSize)
	assert.Positive(t, cfg.ControllerBufferBytes)
	assert.NotEmpty(t, cfg.HTTPAddr)
	assert.NotEmpty(t, cfg.MetricsAddr)
	assert.NotEmpty(t, cfg.TCPAddr)
	assert.NotEmpty(t, cfg.WSPath)
	assert.Empty(t, cfg.SnapshotDBPath)
}

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("REACTORIUM_HTTP_ADDR", ":9999")
	t.Setenv("REACTORIUM_WORKER_POOL_SIZE", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
}

func TestLoadUnknownFilePathErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.toml")
	assert.Error(t, err)
}
