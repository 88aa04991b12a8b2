package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays variables that are set in the process environment.
// Unset variables leave the current value alone.
func parseEnv(cfg *Config) {
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}
}
