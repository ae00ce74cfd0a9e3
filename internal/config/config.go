// Package config loads client configuration from T911_* environment
// variables.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// APIURL is the backend base URL including the /api prefix.
	APIURL      string        `env:"T911_API_URL, default=http://localhost:8000/api"`
	HTTPTimeout time.Duration `env:"T911_HTTP_TIMEOUT, default=20s"`
	LogLevel    string        `env:"T911_LOG_LEVEL, default=info"`
	LogPretty   bool          `env:"T911_LOG_PRETTY, default=true"`
	// CredentialsFile overrides the default per-user credential cache path.
	CredentialsFile string `env:"T911_CREDENTIALS_FILE"`
}

// Load reads configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
