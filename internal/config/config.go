// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"3000"`

	// Security. EncryptionKey and SessionSecret are required — Load fails
	// without them.
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`
	SessionSecret string `env:"SESSION_SECRET,required"`

	// Session management
	SessionTTLSecs int64 `env:"SESSION_TTL_SECS" envDefault:"3600"`

	// TokenRefreshBufferSecs is reserved for a future configurable refresh
	// window. The admission pipeline's inline refresh predicate hard-codes a
	// 6-hour buffer regardless of this setting; see pkg/refresher.
	TokenRefreshBufferSecs int64 `env:"TOKEN_REFRESH_BUFFER_SECS" envDefault:"300"`

	// Persisted state paths
	ServicesConfigPath string `env:"SERVICES_CONFIG_PATH" envDefault:"config/services.json"`
	CredentialsPath    string `env:"CREDENTIALS_PATH" envDefault:"data/credentials.json"`
	UsersPath          string `env:"USERS_PATH" envDefault:"data/users.json"`
	AgentsPath         string `env:"AGENTS_PATH" envDefault:"data/agents.json"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
