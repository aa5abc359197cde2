package queue

import (
	"context"
	"time"
)

// Key layout. One ordered collection per queue_name x priority, a sorted
// companion set for items under a visibility delay, and two always-present
// special collections.
const (
	keyPrefix = "queuekit"

	// FailuresKey holds retry-exhausted business faults.
	FailuresKey = keyPrefix + ":failures"

	// SystemErrorsKey holds non-retryable infra/deserialization faults.
	SystemErrorsKey = keyPrefix + ":system_errors"
)

// QueueKey returns the store key for a queue_name x priority collection.
func QueueKey(queue string, p Priority) string {
	return keyPrefix + ":" + queue + ":" + string(p)
}

// DelayedKey returns the key of the visibility-delay set companion to a
// queue key.
func DelayedKey(queueKey string) string {
	return queueKey + ":delayed"
}

func dedupStoreKey(queue, dedupKey string) string {
	return keyPrefix + ":dedup:" + queue + ":" + dedupKey
}

func processingKey(operationID string) string {
	return keyPrefix + ":processing:" + operationID
}

// Store is the adapter over the shared external queue store. Mutual
// exclusion on individual items is provided by the store's atomic pop,
// never by in-process locking, which keeps the design horizontally
// scalable across processes.
//
// Implementations wrap every call behind reconnect handling and a circuit
// breaker; while the breaker is open, calls fail fast with ErrCircuitOpen
// and no network attempt is made.
type Store interface {
	// Push appends an item to the tail of a collection.
	Push(ctx context.Context, key string, item []byte) error

	// PushBatch appends all items in one pipelined round-trip. Items are
	// independent afterward; a crash mid-batch may leave a prefix pushed
	// and a suffix unqueued.
	PushBatch(ctx context.Context, key string, items [][]byte) error

	// PushDelayed holds an item invisible for the given delay, after
	// which PromoteDue makes it eligible for popping again.
	PushDelayed(ctx context.Context, key string, item []byte, delay time.Duration) error

	// PopFirst atomically pops the head of the first non-empty key, in
	// the given strict order. Returns ErrEmptyQueue when all are empty.
	PopFirst(ctx context.Context, keys ...string) (item []byte, key string, err error)

	// PromoteDue moves items whose visibility delay has elapsed from the
	// delayed set back onto the collection, up to limit items.
	PromoteDue(ctx context.Context, key string, limit int64) error

	// SaveProcessing stores a backup copy of a popped item under the
	// operation ID with a TTL, so work lost to a crashed processor is
	// garbage-collected by the store's own expiry.
	SaveProcessing(ctx context.Context, operationID string, item []byte, ttl time.Duration) error

	// DeleteProcessing removes the backup copy of a terminal item.
	DeleteProcessing(ctx context.Context, operationID string) error

	// ReserveDedup reserves a dedup key for the given operation ID within
	// the window and returns the winning operation ID: the caller's own
	// if the reservation succeeded, or the previously stored one. This is
	// a best-effort window, not a distributed lock.
	ReserveDedup(ctx context.Context, dedupKey, operationID string, window time.Duration) (string, error)

	// Len returns the number of immediately eligible items in a collection.
	Len(ctx context.Context, key string) (int64, error)

	// DelayedLen returns the number of items under a visibility delay.
	DelayedLen(ctx context.Context, key string) (int64, error)

	// Drain atomically discards a collection together with its delayed
	// set and returns the number of removed items.
	Drain(ctx context.Context, key string) (int64, error)
}
