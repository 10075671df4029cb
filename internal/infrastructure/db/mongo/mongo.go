// Package mongo persists the session audit trail.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxPoolSize = 10
	defaultAppName     = "survey-portal"
)

// Config describes the audit database. Audit writes come from a small set of dispatcher
// workers, so the pool stays small.
type Config struct {
	URI         string
	Database    string
	AppName     string
	MaxPoolSize uint64
	Timeout     time.Duration
}

func (cfg Config) clientOptions() *options.ClientOptions {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pool := cfg.MaxPoolSize
	if pool == 0 {
		pool = defaultMaxPoolSize
	}
	app := cfg.AppName
	if app == "" {
		app = defaultAppName
	}
	return options.Client().
		ApplyURI(cfg.URI).
		SetAppName(app).
		SetMaxPoolSize(pool).
		SetServerSelectionTimeout(timeout).
		// Audit events are best effort; acknowledging on the primary is enough.
		SetWriteConcern(writeconcern.W1()).
		SetRetryWrites(true)
}

// Connect opens the audit database and pings it within Timeout.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	opts := cfg.clientOptions()

	connectCtx, cancel := context.WithTimeout(ctx, *opts.ServerSelectionTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("audit store connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("audit store ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}
