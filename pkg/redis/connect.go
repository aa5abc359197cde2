package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect establishes a connection to the Redis server backing the queue
// store. It attempts to connect up to cfg.RetryAttempts times, doubling
// the delay between attempts starting from cfg.RetryInterval. The whole
// acquisition, retries included, is bounded by cfg.ConnectTimeout.
//
// Returns ErrFailedToParseRedisConnString if the connection URL is
// invalid, or ErrRedisNotReady if all attempts fail.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	redisConnOpt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	backoff := cfg.RetryInterval
	if backoff <= 0 {
		backoff = time.Second
	}

	for i := 0; i < attempts; i++ {
		redisClient := redis.NewClient(redisConnOpt)

		if err := redisClient.Ping(ctx).Err(); err == nil {
			return redisClient, nil
		}

		_ = redisClient.Close()

		// No wait after the final attempt.
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil, ErrRedisNotReady
}
