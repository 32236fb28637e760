package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/flagx"
	"github.com/dmitrijs2005/bankwiser/internal/keystore"
)

const (
	KeyBackendKeyring = "keyring"
	KeyBackendSealed  = "sealed"
)

// Config holds runtime settings for the BankWiser CLI.
//
// Remote content updates are enabled when RemoteConfigURL and S3Bucket are
// set; subscription tokens are accepted when EntitlementSecret is set.
type Config struct {
	DataDir    string
	KeyAlias   string
	KeyBackend string

	RemoteConfigURL string
	S3Bucket        string
	S3Region        string
	S3BaseEndpoint  string
	S3AccessKey     string
	S3SecretKey     string

	EntitlementSecret string

	HTTPTimeout      time.Duration
	ProgressInterval time.Duration
	LogLevel         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.KeyAlias = keystore.DefaultAlias
	c.KeyBackend = KeyBackendKeyring
	c.S3Region = "us-east-1"
	c.HTTPTimeout = 30 * time.Second
	c.ProgressInterval = 250 * time.Millisecond
	c.LogLevel = "info"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "bankwiser")
	}
	return ".bankwiser"
}

func (c *Config) PrefsDBPath() string   { return filepath.Join(c.DataDir, "prefs.db") }
func (c *Config) ContentDBPath() string { return filepath.Join(c.DataDir, "content.db") }
func (c *Config) AudioDir() string      { return filepath.Join(c.DataDir, "audio") }
func (c *Config) TempDir() string       { return filepath.Join(c.DataDir, "tmp") }

// UpdatesEnabled reports whether remote content packs are configured.
func (c *Config) UpdatesEnabled() bool {
	return c.RemoteConfigURL != "" && c.S3Bucket != ""
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir is empty", common.ErrInvalidArgument)
	}
	switch c.KeyBackend {
	case KeyBackendKeyring, KeyBackendSealed:
	default:
		return fmt.Errorf("%w: unknown key backend %q", common.ErrInvalidArgument, c.KeyBackend)
	}
	if c.HTTPTimeout < 0 || c.ProgressInterval < 0 {
		return fmt.Errorf("%w: negative interval", common.ErrInvalidArgument)
	}
	return nil
}

// LoadConfig constructs a Config from args (usually os.Args[1:]): defaults
// first, then the JSON file named by -c/-config, then flags. Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path := flagx.ConfigPath(args); path != "" {
		if err := parseJson(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
