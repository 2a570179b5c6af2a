package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 2 * time.Second

// RedisOptions selects the Redis instance holding idempotency records.
type RedisOptions struct {
	URL string
	// Timeout caps dialing, each read and write, and the startup ping.
	Timeout time.Duration
}

// NewRedisClient connects to Redis and pings it once. A zero Timeout uses two
// seconds; a dial timeout in the URL is kept when it is shorter.
func NewRedisClient(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	if o.URL == "" {
		return nil, errors.New("redis url is required")
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	opt, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.DialTimeout == 0 || opt.DialTimeout > timeout {
		opt.DialTimeout = timeout
	}
	opt.ReadTimeout = timeout
	opt.WriteTimeout = timeout

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}
	return client, nil
}
