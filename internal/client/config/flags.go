package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/bankwiser/internal/flagx"
)

var knownFlags = []string{"-d", "-k", "-r", "-t", "-l"}

// parseFlags overlays cfg with the command-line flags it knows about.
// Other arguments (the config file path, REPL input) are filtered out first
// with flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("bankwiser", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.KeyBackend, "k", cfg.KeyBackend, "key backend (keyring|sealed)")
	fs.StringVar(&cfg.RemoteConfigURL, "r", cfg.RemoteConfigURL, "remote config URL")
	timeout := fs.Int("t", int(cfg.HTTPTimeout.Seconds()), "HTTP timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.HTTPTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
