package infra

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Redis backs two concerns behind one REDIS_URL: the idempotency and
// rate-limit caches (go-redis) and the notification queue (asynq).

// NewRedisClient configures the cache client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ParseAsynqRedis resolves the queue connection options from the same URL.
func ParseAsynqRedis(url string) (asynq.RedisConnOpt, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opt, nil
}
