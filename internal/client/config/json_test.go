package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	dir := t.TempDir()

	t.Run("overlays present fields", func(t *testing.T) {
		path := writeTempJSON(t, dir, "full.json", map[string]any{
			"data_dir":           "/srv/bw",
			"key_backend":        "sealed",
			"remote_config_url":  "https://cfg.example/c.json",
			"s3_bucket":          "packs",
			"s3_base_endpoint":   "http://127.0.0.1:9000",
			"s3_access_key":      "minio",
			"s3_secret_key":      "minio123",
			"entitlement_secret": "shh",
			"http_timeout":       "10s",
			"progress_interval":  float64(time.Second),
		})

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, path))

		assert.Equal(t, "/srv/bw", cfg.DataDir)
		assert.Equal(t, "sealed", cfg.KeyBackend)
		assert.Equal(t, "packs", cfg.S3Bucket)
		assert.Equal(t, "us-east-1", cfg.S3Region, "absent field keeps default")
		assert.Equal(t, "http://127.0.0.1:9000", cfg.S3BaseEndpoint)
		assert.Equal(t, "shh", cfg.EntitlementSecret)
		assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
		assert.Equal(t, time.Second, cfg.ProgressInterval)
	})

	t.Run("zero duration is honoured", func(t *testing.T) {
		path := writeTempJSON(t, dir, "zero.json", map[string]any{"progress_interval": "0s"})
		cfg := &Config{ProgressInterval: time.Second}
		require.NoError(t, parseJson(cfg, path))
		assert.Zero(t, cfg.ProgressInterval)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		require.Error(t, parseJson(&Config{}, bad))
	})
}
