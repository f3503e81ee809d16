package db

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates and returns a new Redis client connected to the
// given address. An empty address means events are disabled and nil is
// returned.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Ping the server to ensure the connection is established.
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
