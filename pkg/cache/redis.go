package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/syllabus-approval-api/pkg/config"
)

const dialTimeout = 5 * time.Second

// Options maps cfg onto go-redis client options. Reads carry no deadline
// so idle change-event subscriptions are not torn down by the client.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		ClientName:  "syllabus-approval-api",
		DialTimeout: dialTimeout,
		ReadTimeout: -1,
	}
}

// NewRedis connects the client shared by the statistics cache and the
// change-event broker, failing if the server does not answer a PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := Options(cfg)
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
