package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// PlaceholderJWTSecret is the development-only signing key shipped as the
// default. Production startup refuses it.
const PlaceholderJWTSecret = "CHANGE_ME_DEV_ONLY"

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppAddr string `envconfig:"APP_ADDR" default:":8080"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PGDSN string `envconfig:"PG_DSN" required:"true"`

	JWTSecret     string `envconfig:"JWT_SECRET" default:"CHANGE_ME_DEV_ONLY"`
	JWTExpiresMin int    `envconfig:"JWT_EXPIRES_MIN" default:"60"`

	CacheTTLSeconds int `envconfig:"API_CACHE_TTL_SECONDS" default:"60"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleTokeninfoURL string `envconfig:"GOOGLE_TOKENINFO_URL" default:"https://oauth2.googleapis.com/tokeninfo"`
	IDPTimeoutSeconds  int    `envconfig:"IDP_TIMEOUT_SECONDS" default:"4"`

	HashWorkers int `envconfig:"HASH_WORKERS" default:"4"`
	BcryptCost  int `envconfig:"BCRYPT_COST" default:"10"`

	RateLimitPerMin     int `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
	AuthRateLimitPerMin int `envconfig:"AUTH_RATE_LIMIT_PER_MIN" default:"10"`

	ReadTimeoutSeconds     int `envconfig:"READ_TIMEOUT_SECONDS" default:"15"`
	WriteTimeoutSeconds    int `envconfig:"WRITE_TIMEOUT_SECONDS" default:"20"`
	IdleTimeoutSeconds     int `envconfig:"IDLE_TIMEOUT_SECONDS" default:"60"`
	ShutdownTimeoutSeconds int `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"10"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.IsProduction() && (cfg.JWTSecret == "" || cfg.JWTSecret == PlaceholderJWTSecret) {
		return nil, errors.New("JWT_SECRET must be set to a real key in production")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// TokenTTL is the bearer token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpiresMin) * time.Minute
}

// CacheTTL bounds the server-side caches and the Cache-Control max-age alike.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// IDPTimeout caps the round trip to the federated identity provider.
func (c *Config) IDPTimeout() time.Duration {
	return time.Duration(c.IDPTimeoutSeconds) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
