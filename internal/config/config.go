package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains server configuration parameters.
type Config struct {
	Addr     string `env:"SERVER_ADDR" envDefault:":8080"`
	AppName  string `env:"APP_NAME" envDefault:"MDVault Auth"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel int    `env:"LOG_LEVEL" envDefault:"0"`

	Issuer string `env:"ISSUER" envDefault:"http://localhost:8080"`

	Keys     Keys     `envPrefix:"KEY_"`
	Tokens   Tokens   `envPrefix:"TOKEN_"`
	Database Database `envPrefix:"DATABASE_"`
	Security Security `envPrefix:"SECURITY_"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Keys contains signing key storage and remote verification parameters.
type Keys struct {
	Dir           string        `env:"DIR" envDefault:"./data/keys"`
	ReadOnly      bool          `env:"READ_ONLY" envDefault:"false"`
	RemoteJWKSURL string        `env:"REMOTE_JWKS_URL"`
	JWKSCacheTTL  time.Duration `env:"JWKS_CACHE_TTL" envDefault:"1h"`
}

// Tokens contains token and session lifetime parameters.
type Tokens struct {
	AccessTokenTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	ServiceTokenTTL time.Duration `env:"SERVICE_TTL" envDefault:"87600h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	AuthCodeTTL     time.Duration `env:"AUTH_CODE_TTL" envDefault:"10m"`
}

// Database contains database connection parameters. An empty DSN selects the
// in-memory stores.
type Database struct {
	DSN string `env:"DSN"`
}

// Security contains throttling and redirect allowlist parameters.
type Security struct {
	RateLimitRPM    int           `env:"RATE_LIMIT_RPM" envDefault:"60"`
	TrustedHosts    []string      `env:"TRUSTED_REDIRECT_HOSTS" envSeparator:","`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// Load reads configuration from the environment, honouring a local .env file
// in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
