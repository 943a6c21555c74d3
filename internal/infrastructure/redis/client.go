package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOption adjusts the parsed client options.
type ClientOption func(*redis.Options)

// WithDialTimeout limits the time spent connecting.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *redis.Options) {
		o.DialTimeout = d
	}
}

// WithPoolSize sets the number of pooled connections.
func WithPoolSize(n int) ClientOption {
	return func(o *redis.Options) {
		o.PoolSize = n
	}
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, redisURL string, options ...ClientOption) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	for _, apply := range options {
		apply(opts)
	}

	client := redis.NewClient(opts)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
