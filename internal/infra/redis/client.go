package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection shared by the delivery log and the
// escalation sink.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// Prefix namespaces every key; defaults to "zerofail".
	Prefix string `yaml:"prefix"`
	// TTL bounds how long delivery records live; 0 keeps them until pruned.
	TTL time.Duration `yaml:"ttl"`
	// Channel receives published escalation signals.
	Channel string `yaml:"channel"`
	// SignalHistory caps the stored escalation list.
	SignalHistory int `yaml:"signal_history"`
}

// Enabled reports whether Redis is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "zerofail"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) deliveryIndexKey() string {
	return c.prefix + ":deliveries"
}

func (c *Client) deliveryKey(id string) string {
	return fmt.Sprintf("%s:delivery:%s", c.prefix, id)
}

func (c *Client) signalsKey() string {
	return c.prefix + ":escalations"
}
