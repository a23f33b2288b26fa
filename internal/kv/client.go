// Package kv wraps the Redis client behind the few operations the server
// needs: room snapshots, sessions, matchmaking queues, bot job queues and
// rate-limit counters.
package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection with the server's key schema.
type Client struct {
	rdb *redis.Client
}

// NewClient connects from a redis:// URL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing client, mainly for tests against
// miniature servers.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw client for operations the wrapper does not
// cover.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
