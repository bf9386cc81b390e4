package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectOptions sizes the mongo connection pool. Zero values fall back
// to defaults that fit a single storefront instance.
type ConnectOptions struct {
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	SelectTimeout  time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = 50
	}
	if o.MinPoolSize == 0 {
		o.MinPoolSize = 5
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.SelectTimeout == 0 {
		o.SelectTimeout = 5 * time.Second
	}
	return o
}

// ConnectMongoDB opens a pooled client, verifies it with a ping and
// returns a handle on the named database.
func ConnectMongoDB(ctx context.Context, uri, database string, opts ConnectOptions) (*mongo.Database, error) {
	opts = opts.withDefaults()
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.SelectTimeout).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}
