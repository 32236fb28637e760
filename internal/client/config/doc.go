// Package config loads runtime configuration for the BankWiser CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory (databases, audio, temp files)
//	-k string   key backend: keyring or sealed
//	-r string   remote config URL
//	-t int      HTTP timeout (seconds)
//	-l string   log level: debug, info, warn, error
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "data_dir": "/home/me/.bankwiser",
//	  "key_backend": "keyring",
//	  "remote_config_url": "https://config.example/bankwiser.json",
//	  "s3_bucket": "bankwiser-packs",
//	  "s3_region": "ap-south-1",
//	  "http_timeout": "30s",
//	  "progress_interval": "250ms",
//	  "log_level": "info"
//	}
package config
