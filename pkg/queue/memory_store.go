package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store for testing and local development. It
// mirrors the external store's semantics (atomic pop, visibility-delayed
// sets, expiring backup and dedup keys) behind one mutex; expiry is
// applied lazily on access instead of by a background sweeper.
type MemoryStore struct {
	mu         sync.Mutex
	lists      map[string][][]byte
	delayed    map[string][]delayedItem
	processing map[string]expiringItem
	dedup      map[string]expiringValue
}

type delayedItem struct {
	eligibleAt time.Time
	data       []byte
}

type expiringItem struct {
	data      []byte
	expiresAt time.Time
}

type expiringValue struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:      make(map[string][][]byte),
		delayed:    make(map[string][]delayedItem),
		processing: make(map[string]expiringItem),
		dedup:      make(map[string]expiringValue),
	}
}

// Push implements Store.
func (ms *MemoryStore) Push(_ context.Context, key string, item []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.lists[key] = append(ms.lists[key], cloneBytes(item))
	return nil
}

// PushBatch implements Store.
func (ms *MemoryStore) PushBatch(_ context.Context, key string, items [][]byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, item := range items {
		ms.lists[key] = append(ms.lists[key], cloneBytes(item))
	}
	return nil
}

// PushDelayed implements Store.
func (ms *MemoryStore) PushDelayed(_ context.Context, key string, item []byte, delay time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.delayed[key] = append(ms.delayed[key], delayedItem{
		eligibleAt: time.Now().Add(delay),
		data:       cloneBytes(item),
	})
	return nil
}

// PopFirst implements Store: the first non-empty key in the given order
// yields its head item.
func (ms *MemoryStore) PopFirst(_ context.Context, keys ...string) ([]byte, string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, key := range keys {
		list := ms.lists[key]
		if len(list) == 0 {
			continue
		}
		item := list[0]
		ms.lists[key] = list[1:]
		return item, key, nil
	}
	return nil, "", ErrEmptyQueue
}

// PromoteDue implements Store.
func (ms *MemoryStore) PromoteDue(_ context.Context, key string, limit int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var kept []delayedItem
	var promoted int64

	for _, item := range ms.delayed[key] {
		if promoted < limit && !item.eligibleAt.After(now) {
			ms.lists[key] = append(ms.lists[key], item.data)
			promoted++
			continue
		}
		kept = append(kept, item)
	}
	ms.delayed[key] = kept
	return nil
}

// SaveProcessing implements Store.
func (ms *MemoryStore) SaveProcessing(_ context.Context, operationID string, item []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.processing[operationID] = expiringItem{
		data:      cloneBytes(item),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// DeleteProcessing implements Store.
func (ms *MemoryStore) DeleteProcessing(_ context.Context, operationID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.processing, operationID)
	return nil
}

// Processing returns the backup copy of an in-flight item, honoring its
// TTL. Intended for tests and diagnostics.
func (ms *MemoryStore) Processing(operationID string) ([]byte, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, ok := ms.processing[operationID]
	if !ok || time.Now().After(item.expiresAt) {
		delete(ms.processing, operationID)
		return nil, false
	}
	return cloneBytes(item.data), true
}

// ReserveDedup implements Store.
func (ms *MemoryStore) ReserveDedup(_ context.Context, dedupKey, operationID string, window time.Duration) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	if existing, ok := ms.dedup[dedupKey]; ok && now.Before(existing.expiresAt) {
		return existing.value, nil
	}

	ms.dedup[dedupKey] = expiringValue{value: operationID, expiresAt: now.Add(window)}
	return operationID, nil
}

// Len implements Store.
func (ms *MemoryStore) Len(_ context.Context, key string) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return int64(len(ms.lists[key])), nil
}

// DelayedLen implements Store.
func (ms *MemoryStore) DelayedLen(_ context.Context, key string) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return int64(len(ms.delayed[key])), nil
}

// Drain implements Store.
func (ms *MemoryStore) Drain(_ context.Context, key string) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := int64(len(ms.lists[key]) + len(ms.delayed[key]))
	delete(ms.lists, key)
	delete(ms.delayed, key)
	return removed, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
