package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries the environment-tunable server settings. All knobs have
// defaults suitable for local development.
type Config struct {
	Name         string        `env:"MCPMESH_SERVER_NAME"    envDefault:"mcpmesh"`
	Version      string        `env:"MCPMESH_SERVER_VERSION" envDefault:"0.1.0"`
	StartTimeout time.Duration `env:"MCPMESH_START_TIMEOUT"  envDefault:"5s"`
	StopTimeout  time.Duration `env:"MCPMESH_STOP_TIMEOUT"   envDefault:"5s"`
}

// ConfigFromEnv loads Config from MCPMESH_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("server: parse env config: %w", err)
	}
	return cfg, nil
}
