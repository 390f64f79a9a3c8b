package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("forecast")
	require.NoError(t, err)

	assert.Equal(t, "forecast", cfg.Service.Name)
	assert.Equal(t, "http://localhost:8000", cfg.Client.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Client.UploadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Poll.MaxDuration)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, StorageDir, cfg.Storage.Kind)
	assert.Equal(t, StoreMemory, cfg.Mock.Store)
	assert.Equal(t, int64(50<<20), cfg.Mock.MaxUploadBytes)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FORECAST_BASE_URL", "https://forecast.example.com/api")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "7")
	t.Setenv("RETRY_JITTER", "0")
	t.Setenv("HISTORY_ENABLED", "true")
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load("forecast")
	require.NoError(t, err)

	assert.Equal(t, "https://forecast.example.com/api", cfg.Client.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 7, cfg.Poll.MaxAttempts)
	assert.Equal(t, 0.0, cfg.Retry.Jitter)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 8000, cfg.Service.Port, "unparseable values fall back to the default")

	client := cfg.ClientConfig()
	assert.Equal(t, cfg.Client.BaseURL, client.BaseURL)
	assert.Equal(t, cfg.Retry.MaxRetries, client.Retry.MaxRetries)
	assert.Equal(t, 7, cfg.PollPolicy().MaxAttempts)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"FORECAST_BASE_URL": "localhost:8000",
		"STORAGE_KIND":      "s3",
		"MOCK_STORE":        "etcd",
		"POLL_MAX_DURATION": "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("forecast")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
forecast_base_url: http://file.example.com
poll_interval: 3s
poll_max_attempts: 4
storage_kind: minio
minio_bucket: results
`), 0o600))

	t.Setenv("POLL_INTERVAL", "1s")

	cfg, err := LoadFile("forecast", path)
	require.NoError(t, err)

	assert.Equal(t, "http://file.example.com", cfg.Client.BaseURL)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 4, cfg.Poll.MaxAttempts)
	assert.Equal(t, StorageMinio, cfg.Storage.Kind)
	assert.Equal(t, "results", cfg.Storage.Minio.Bucket)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("forecast", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FORECAST_TEST_ONLY_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FORECAST_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("FORECAST_TEST_ONLY_KEY"))
}
