// Package config resolves process configuration from the environment,
// grounded on the caarlos0/env usage in the pack's jbrackens-AttaboyGO
// manifest (other_examples/manifests/jbrackens-AttaboyGO/go.mod).
package config

import (
	"github.com/caarlos0/env/v11"
)

// Config is the §6 "Environment configuration (recognized options)" set,
// plus the connection strings the teacher's dual CLI/Lambda entrypoint
// needs to wire storage and cache.
type Config struct {
	VerifySSL              bool   `env:"VERIFY_SSL" envDefault:"true"`
	APIFootballKey         string `env:"API_FOOTBALL_KEY"`
	ModelDefaultWindowYears int   `env:"MODEL_DEFAULT_WINDOW_YEARS" envDefault:"3"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/oracle"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`

	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`

	IARequestTimeoutSeconds int `env:"IA_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	IALeagueTimeoutMinutes  int `env:"IA_LEAGUE_TIMEOUT_MINUTES" envDefault:"10"`
	IARateLimitGapSeconds   int `env:"IA_RATE_LIMIT_GAP_SECONDS" envDefault:"6"`
}

// Load parses Config from the process environment, applying the
// envDefault tags above for anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.ModelDefaultWindowYears != 2 && cfg.ModelDefaultWindowYears != 3 && cfg.ModelDefaultWindowYears != 4 {
		cfg.ModelDefaultWindowYears = 3
	}
	return cfg, nil
}
