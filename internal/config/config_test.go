package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Upload.MaxFiles)
	assert.Equal(t, "concatenated_file.xlsx", cfg.Storage.ArtifactName)
	assert.Equal(t, []string{"plot", "visualize", "graph", "chart"}, cfg.Query.VisualizationKeywords)
	assert.Equal(t, filepath.Join(dir, "runtime"), cfg.Storage.RuntimeDirectory)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
llm:
  model: gpt-4o-mini
  chart_temperature: 0.3
storage:
  runtime_directory: /var/lib/ci
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.3, cfg.LLM.ChartTemperature, 1e-6)
	// untouched sections keep defaults
	assert.InDelta(t, 0.1, cfg.LLM.ColumnTemperature, 1e-6)
	assert.Equal(t, "/var/lib/ci", cfg.Storage.RuntimeDirectory)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("S3_BUCKET", "campaigns")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "redis", cfg.Upload.LeaseBackend)
	assert.Equal(t, "redis:6379", cfg.Upload.Redis.Addr)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "campaigns", cfg.Storage.S3.Bucket)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: ftp\n"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.Storage.DataDirectory, cfg.Storage.UploadsDirectory, cfg.Storage.RuntimeDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
