package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bankwiser/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent
// fields leave the corresponding Config value untouched.
type JsonConfig struct {
	DataDir    string `json:"data_dir"`
	KeyAlias   string `json:"key_alias"`
	KeyBackend string `json:"key_backend"`

	RemoteConfigURL string `json:"remote_config_url"`
	S3Bucket        string `json:"s3_bucket"`
	S3Region        string `json:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`
	S3AccessKey     string `json:"s3_access_key"`
	S3SecretKey     string `json:"s3_secret_key"`

	EntitlementSecret string `json:"entitlement_secret"`

	HTTPTimeout      *timex.Duration `json:"http_timeout"`
	ProgressInterval *timex.Duration `json:"progress_interval"`
	LogLevel         string          `json:"log_level"`
}

// parseJson overlays cfg with the values found in the JSON file at path.
func parseJson(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.KeyAlias, jc.KeyAlias)
	setString(&cfg.KeyBackend, jc.KeyBackend)
	setString(&cfg.RemoteConfigURL, jc.RemoteConfigURL)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.EntitlementSecret, jc.EntitlementSecret)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.ProgressInterval != nil {
		cfg.ProgressInterval = jc.ProgressInterval.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
