// Package redis provides connection acquisition for the shared queue
// store, wrapping the go-redis client with:
//
//   - A `Connect` helper that performs a bounded number of connection
//     attempts with exponential backoff between them.
//   - Health-check helpers to integrate the store into liveness /
//     readiness probes of the surrounding process.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	cfg := redis.Config{
//	    ConnectionURL:  "redis://localhost:6379/0",
//	    RetryAttempts:  3,
//	    RetryInterval:  time.Second,
//	    ConnectTimeout: 30 * time.Second,
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Connection failures after the retry budget is spent surface as
// ErrRedisNotReady; callers higher up the stack (the store adapter's
// circuit breaker) decide how to degrade.
package redis
