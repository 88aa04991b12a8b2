package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the authkeeper CLI.
//
// Fields:
//   - ServerURL: base URL of the authkeeper HTTP API.
//   - RequestTimeout: per-request deadline.
//   - SessionFile: where the refresh token is kept between runs; empty
//     keeps the session in memory only.
type Config struct {
	ServerURL      string        `env:"AUTHKEEPER_SERVER"`
	RequestTimeout time.Duration `env:"AUTHKEEPER_TIMEOUT"`
	SessionFile    string        `env:"AUTHKEEPER_SESSION_FILE"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 10 * time.Second
	c.SessionFile = defaultSessionFile()
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "authkeeper", "session.json")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	args := os.Args[1:]

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseEnv(cfg)
	parseFlags(cfg, args)
	return cfg
}
