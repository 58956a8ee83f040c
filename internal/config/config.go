// Package config layers environment-derived defaults under the CLI
// flags.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds the tunables that come from the environment rather than the
// fixed CLI surface.
type Env struct {
	TimeoutMS int    `env:"EPGDC_TIMEOUT_MS" envDefault:"10000"`
	DNSRoot   string `env:"EPGDC_DNS_ROOT" envDefault:"radiodns.org"`
	LogLevel  string `env:"EPGDC_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv parses and validates the environment settings.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	if e.TimeoutMS <= 0 {
		return Env{}, fmt.Errorf("EPGDC_TIMEOUT_MS must be positive, got %d", e.TimeoutMS)
	}
	if e.DNSRoot == "" {
		return Env{}, fmt.Errorf("EPGDC_DNS_ROOT must not be empty")
	}
	return e, nil
}

// Timeout returns the per-request fetch timeout.
func (e Env) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}
