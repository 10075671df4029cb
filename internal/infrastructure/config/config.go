package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Issuer  IssuerConfig
	API     APIConfig
	Session SessionConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Audit   AuditConfig
}

type IssuerConfig struct {
	BaseURL string        `env:"ISSUER_BASE_URL, required"`
	Timeout time.Duration `env:"ISSUER_TIMEOUT,  default=10s"`
}

type APIConfig struct {
	BaseURL string `env:"API_BASE_URL, required"`
}

type SessionConfig struct {
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL, default=55m"`
	RenewBuffer     time.Duration `env:"SESSION_RENEW_BUFFER,     default=300s"`
	TTL             time.Duration `env:"SESSION_TTL,              default=24h"`
	CookieName      string        `env:"SESSION_COOKIE_NAME,      default=portal_session"`
	CookieSecure    bool          `env:"SESSION_COOKIE_SECURE,    default=true"`
	AccessCookie    string        `env:"ACCESS_COOKIE_NAME,       default=access_token"`
}

type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR,           default=localhost:6379"`
	Password     string `env:"REDIS_PASSWORD"`
	DB           int    `env:"REDIS_DB,             default=0"`
	PoolSize     int    `env:"REDIS_POOL_SIZE,      default=20"`
	MinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS, default=2"`
}

// MongoConfig is optional: an empty URI sends audit events to the log only.
type MongoConfig struct {
	URI         string `env:"MONGO_URI"`
	Database    string `env:"MONGO_DB,            default=survey_portal"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=10"`
}

type AuditConfig struct {
	Workers   int           `env:"AUDIT_WORKERS,   default=4"`
	Retention time.Duration `env:"AUDIT_RETENTION, default=2160h"`
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom resolves configuration from l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if cfg.Session.RenewBuffer >= cfg.Session.RefreshInterval {
		return nil, fmt.Errorf("config: SESSION_RENEW_BUFFER (%s) must be shorter than SESSION_REFRESH_INTERVAL (%s)",
			cfg.Session.RenewBuffer, cfg.Session.RefreshInterval)
	}
	return &cfg, nil
}
