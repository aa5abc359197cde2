package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vergnetp/queuekit/pkg/breaker"
)

// RedisStore implements Store on the shared Redis structure: lists for the
// priority collections, a sorted set per collection for visibility-delayed
// items, and plain expiring keys for backup copies and dedup markers.
//
// Every call is guarded by a circuit breaker so that a store outage
// surfaces as an immediate ErrCircuitOpen instead of a pile-up of
// timed-out network attempts. The breaker is process-local; size it per
// process, not globally.
type RedisStore struct {
	client redis.UniversalClient
	cb     *breaker.Breaker
	logger *slog.Logger
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithStoreBreaker replaces the default circuit breaker.
func WithStoreBreaker(b *breaker.Breaker) RedisStoreOption {
	return func(s *RedisStore) {
		if b != nil {
			s.cb = b
		}
	}
}

// WithStoreLogger sets the logger for the store adapter.
func WithStoreLogger(logger *slog.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore creates a Store backed by the given Redis client, usually
// obtained from pkg/redis.Connect.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreNil
	}

	s := &RedisStore{
		client: client,
		cb:     breaker.New(5, 1, 30*time.Second),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BreakerStats exposes the guarding breaker's state for monitoring.
func (s *RedisStore) BreakerStats() breaker.Stats { return s.cb.Stats() }

// Push implements Store.
func (s *RedisStore) Push(ctx context.Context, key string, item []byte) error {
	return s.guard("push", func() error {
		return s.client.RPush(ctx, key, item).Err()
	})
}

// PushBatch implements Store. All items go out in one pipelined
// round-trip; items are independent afterward.
func (s *RedisStore) PushBatch(ctx context.Context, key string, items [][]byte) error {
	return s.guard("push_batch", func() error {
		pipe := s.client.TxPipeline()
		for _, item := range items {
			pipe.RPush(ctx, key, item)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// PushDelayed implements Store: the item is parked in the collection's
// sorted set, scored by the instant it becomes eligible.
func (s *RedisStore) PushDelayed(ctx context.Context, key string, item []byte, delay time.Duration) error {
	return s.guard("push_delayed", func() error {
		eligibleAt := time.Now().Add(delay)
		return s.client.ZAdd(ctx, DelayedKey(key), redis.Z{
			Score:  float64(eligibleAt.UnixMilli()),
			Member: item,
		}).Err()
	})
}

// PopFirst implements Store. LPOP is atomic per key, so each stored item
// is handed to exactly one worker.
func (s *RedisStore) PopFirst(ctx context.Context, keys ...string) ([]byte, string, error) {
	var item []byte
	var poppedKey string

	err := s.guard("pop", func() error {
		for _, key := range keys {
			data, err := s.client.LPop(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return err
			}
			item = data
			poppedKey = key
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if item == nil {
		return nil, "", ErrEmptyQueue
	}
	return item, poppedKey, nil
}

// PromoteDue implements Store: items whose visibility delay has elapsed
// move from the sorted set back onto the list in one transaction.
func (s *RedisStore) PromoteDue(ctx context.Context, key string, limit int64) error {
	return s.guard("promote_due", func() error {
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		members, err := s.client.ZRangeByScore(ctx, DelayedKey(key), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   now,
			Count: limit,
		}).Result()
		if err != nil || len(members) == 0 {
			return err
		}

		pipe := s.client.TxPipeline()
		for _, member := range members {
			pipe.RPush(ctx, key, member)
			pipe.ZRem(ctx, DelayedKey(key), member)
		}
		_, err = pipe.Exec(ctx)
		return err
	})
}

// SaveProcessing implements Store: a plain key with a TTL, so items popped
// by a processor that never came back are garbage-collected by the store.
func (s *RedisStore) SaveProcessing(ctx context.Context, operationID string, item []byte, ttl time.Duration) error {
	return s.guard("save_processing", func() error {
		return s.client.Set(ctx, processingKey(operationID), item, ttl).Err()
	})
}

// DeleteProcessing implements Store.
func (s *RedisStore) DeleteProcessing(ctx context.Context, operationID string) error {
	return s.guard("delete_processing", func() error {
		return s.client.Del(ctx, processingKey(operationID)).Err()
	})
}

// ReserveDedup implements Store using SET NX with the window as TTL.
func (s *RedisStore) ReserveDedup(ctx context.Context, dedupKey, operationID string, window time.Duration) (string, error) {
	winner := operationID

	err := s.guard("reserve_dedup", func() error {
		ok, err := s.client.SetNX(ctx, dedupKey, operationID, window).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		existing, err := s.client.Get(ctx, dedupKey).Result()
		if errors.Is(err, redis.Nil) {
			// The marker expired between SETNX and GET; the caller keeps
			// its own ID. Best-effort window, not a lock.
			return nil
		}
		if err != nil {
			return err
		}
		winner = existing
		return nil
	})
	if err != nil {
		return "", err
	}
	return winner, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.guard("len", func() error {
		var err error
		n, err = s.client.LLen(ctx, key).Result()
		return err
	})
	return n, err
}

// DelayedLen implements Store.
func (s *RedisStore) DelayedLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.guard("delayed_len", func() error {
		var err error
		n, err = s.client.ZCard(ctx, DelayedKey(key)).Result()
		return err
	})
	return n, err
}

// Drain implements Store: counts and deletes the collection and its
// delayed set inside one MULTI/EXEC transaction.
func (s *RedisStore) Drain(ctx context.Context, key string) (int64, error) {
	var removed int64
	err := s.guard("drain", func() error {
		pipe := s.client.TxPipeline()
		listLen := pipe.LLen(ctx, key)
		delayedLen := pipe.ZCard(ctx, DelayedKey(key))
		pipe.Del(ctx, key, DelayedKey(key))

		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		removed = listLen.Val() + delayedLen.Val()
		return nil
	})
	return removed, err
}

// guard wraps a store call with the circuit breaker: rejected immediately
// while open, outcome recorded otherwise.
func (s *RedisStore) guard(op string, fn func() error) error {
	if !s.cb.Allow() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, op)
	}

	if err := fn(); err != nil {
		s.cb.RecordFailure()
		return fmt.Errorf("queue store %s: %w", op, err)
	}

	s.cb.RecordSuccess()
	return nil
}
