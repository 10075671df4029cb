// Package redis is the session credential store: connection setup and the
// CredentialRepository on top of it.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCommandTimeout = 2 * time.Second
	defaultDialTimeout    = 5 * time.Second
	defaultPoolSize       = 20
	defaultMinIdleConns   = 2
	clientName            = "survey-portal"
)

// Config describes the Redis instance holding server-side sessions. Every request with a
// session cookie may hit it, so commands are bounded tightly and a few warm connections
// are kept open.
type Config struct {
	Addr     string
	Password string
	DB       int
	// PoolSize and MinIdleConns default to 20 and 2.
	PoolSize     int
	MinIdleConns int
	// CommandTimeout bounds reads and writes; DialTimeout also bounds the startup ping.
	CommandTimeout time.Duration
	DialTimeout    time.Duration
}

func (cfg Config) options() *redis.Options {
	cmd := cfg.CommandTimeout
	if cmd <= 0 {
		cmd = defaultCommandTimeout
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}
	idle := cfg.MinIdleConns
	if idle <= 0 {
		idle = defaultMinIdleConns
	}
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		PoolSize:     pool,
		MinIdleConns: idle,
		DialTimeout:  dial,
		ReadTimeout:  cmd,
		WriteTimeout: cmd,
		// A request waiting longer than a command timeout for a connection fails fast.
		PoolTimeout: cmd,
	}
}

// Connect opens the session store and fails when it does not answer a ping within
// DialTimeout. The portal cannot serve sessions without it.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session store %s: ping: %w", cfg.Addr, err)
	}
	return client, nil
}
