package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vergnetp/queuekit/pkg/retry"
)

// statusCountConcurrency bounds how many store counts QueueStatus issues
// at once.
const statusCountConcurrency = 4

// Manager is the producer-facing side of the queue: it serializes jobs,
// enforces deduplication, pushes to the priority-specific store key, and
// answers administrative queries.
type Manager struct {
	store       Store
	metrics     *MetricsRegistry
	serializer  Serializer
	logger      *slog.Logger
	dedupWindow time.Duration

	defaultQueue    string
	defaultPriority Priority
	defaultPolicy   retry.Policy

	// knownQueues tracks every queue this manager has touched so that
	// QueueStatus can enumerate their keys.
	mu          sync.Mutex
	knownQueues map[string]struct{}
}

// NewManager creates a Manager on top of a Store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	options := defaultManagerOptions()
	for _, opt := range opts {
		opt(options)
	}

	m := &Manager{
		store:           store,
		metrics:         options.metrics,
		serializer:      options.serializer,
		logger:          options.logger,
		dedupWindow:     options.dedupWindow,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
		defaultPolicy:   options.defaultPolicy,
		knownQueues:     map[string]struct{}{options.defaultQueue: {}},
	}
	if m.metrics == nil {
		m.metrics = NewMetricsRegistry(m.logger)
	}
	return m, nil
}

// Metrics returns the manager's metrics registry, so a co-located worker
// can share it.
func (m *Manager) Metrics() *MetricsRegistry { return m.metrics }

// Enqueue serializes the entity and pushes a job onto the queue. When a
// dedup key is supplied and an equivalent job was enqueued within the
// dedup window, the existing operation ID is returned and no second item
// is stored.
func (m *Manager) Enqueue(ctx context.Context, entity any, processor Ref, opts ...EnqueueOption) (EnqueueResult, error) {
	if entity == nil {
		return EnqueueResult{}, ErrEntityNil
	}
	if processor.IsZero() {
		return EnqueueResult{}, ErrProcessorRefEmpty
	}

	options := m.defaultEnqueueOptions()
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return EnqueueResult{}, ErrInvalidPriority
	}

	job, err := m.buildJob(entity, processor, options)
	if err != nil {
		return EnqueueResult{}, err
	}

	queueKey := job.Key()
	m.trackQueue(job.QueueName)

	if job.DedupKey != "" {
		winner, err := m.store.ReserveDedup(ctx,
			dedupStoreKey(job.QueueName, job.DedupKey),
			job.OperationID.String(),
			m.dedupWindow)
		if err != nil {
			return EnqueueResult{}, fmt.Errorf("reserve dedup key %q: %w", job.DedupKey, err)
		}
		if winner != job.OperationID.String() {
			existing, err := uuid.Parse(winner)
			if err != nil {
				return EnqueueResult{}, fmt.Errorf("stored dedup marker %q is not an operation ID: %w", winner, err)
			}
			m.logger.Debug("enqueue deduplicated",
				slog.String("operation_id", existing.String()),
				slog.String("dedup_key", job.DedupKey),
				slog.String("queue_key", queueKey))
			return EnqueueResult{OperationID: existing, QueueKey: queueKey, Deduplicated: true}, nil
		}
	}

	data, err := options.serializer.Marshal(job)
	if err != nil {
		return EnqueueResult{}, errors.Join(ErrSerializeEntity, err)
	}

	if err := m.store.Push(ctx, queueKey, data); err != nil {
		return EnqueueResult{}, fmt.Errorf("push job %s to %q: %w", job.OperationID, queueKey, err)
	}

	m.metrics.Inc(MetricEnqueued)
	m.logger.Debug("job enqueued",
		slog.String("operation_id", job.OperationID.String()),
		slog.String("processor", processor.String()),
		slog.String("queue_key", queueKey))

	return EnqueueResult{OperationID: job.OperationID, QueueKey: queueKey}, nil
}

// EnqueueBatch pushes all entities in one pipelined round-trip. Each item
// is tracked and retried independently afterward; a crash mid-batch may
// leave a prefix pushed and a suffix unqueued. Serialization failures are
// detected up front, before anything is pushed.
func (m *Manager) EnqueueBatch(ctx context.Context, entities []any, processor Ref, opts ...EnqueueOption) ([]EnqueueResult, error) {
	if len(entities) == 0 {
		return nil, ErrNoItemsToEnqueue
	}
	if processor.IsZero() {
		return nil, ErrProcessorRefEmpty
	}

	options := m.defaultEnqueueOptions()
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	results := make([]EnqueueResult, 0, len(entities))
	items := make([][]byte, 0, len(entities))
	var queueKey string

	for i, entity := range entities {
		if entity == nil {
			return nil, fmt.Errorf("%w: item %d", ErrEntityNil, i)
		}
		job, err := m.buildJob(entity, processor, options)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		data, err := options.serializer.Marshal(job)
		if err != nil {
			return nil, errors.Join(ErrSerializeEntity, fmt.Errorf("item %d: %w", i, err))
		}

		queueKey = job.Key()
		items = append(items, data)
		results = append(results, EnqueueResult{OperationID: job.OperationID, QueueKey: queueKey})
	}

	m.trackQueue(options.queue)

	if err := m.store.PushBatch(ctx, queueKey, items); err != nil {
		return nil, fmt.Errorf("push batch of %d to %q: %w", len(items), queueKey, err)
	}

	m.metrics.Add(MetricEnqueued, int64(len(items)))
	m.metrics.LogBatch("enqueue_batch", len(items), 0)

	return results, nil
}

// QueueStatus aggregates per-key counts for every queue this manager has
// touched, the failures and system_errors collections, and the metrics
// snapshot. It lets operators distinguish "it kept failing" from "it was
// never runnable". Counts are gathered concurrently; they form a fuzzy
// snapshot, not a consistent cut.
func (m *Manager) QueueStatus(ctx context.Context) (Status, error) {
	var mu sync.Mutex
	counts := make(map[string]int64)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusCountConcurrency)

	count := func(key string, fn func(context.Context, string) (int64, error)) {
		g.Go(func() error {
			n, err := fn(ctx, key)
			if err != nil {
				return fmt.Errorf("count %q: %w", key, err)
			}
			mu.Lock()
			counts[key] = n
			mu.Unlock()
			return nil
		})
	}

	for _, queue := range m.queues() {
		for _, p := range priorityOrder {
			key := QueueKey(queue, p)
			count(key, m.store.Len)
			count(DelayedKey(key), func(ctx context.Context, _ string) (int64, error) {
				return m.store.DelayedLen(ctx, key)
			})
		}
	}
	count(FailuresKey, m.store.Len)
	count(SystemErrorsKey, m.store.Len)

	if err := g.Wait(); err != nil {
		return Status{}, err
	}
	return Status{Counts: counts, Metrics: m.metrics.Snapshot()}, nil
}

// Purge atomically drains and discards a queue x priority collection,
// including its delayed set, returning the removed count.
func (m *Manager) Purge(ctx context.Context, queue string, priority Priority) (int64, error) {
	if !priority.Valid() {
		return 0, ErrInvalidPriority
	}

	key := QueueKey(queue, priority)
	removed, err := m.store.Drain(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("drain %q: %w", key, err)
	}

	m.metrics.LogBatch("purge", int(removed), 0)
	return removed, nil
}

func (m *Manager) buildJob(entity any, processor Ref, options *enqueueOptions) (*Job, error) {
	raw, err := options.serializer.Marshal(entity)
	if err != nil {
		return nil, errors.Join(ErrSerializeEntity, fmt.Errorf("entity of type %T: %w", entity, err))
	}

	return &Job{
		OperationID:     uuid.New(),
		Entity:          raw,
		ProcessorName:   processor.Name,
		ProcessorModule: processor.Module,
		Priority:        options.priority,
		QueueName:       options.queue,
		RetryPolicy:     options.policy,
		OnSuccess:       options.onSuccess,
		OnFailure:       options.onFailure,
		Timeout:         options.timeout,
		DedupKey:        options.dedupKey,
		Attempt:         0,
		EnqueuedAt:      time.Now(),
	}, nil
}

func (m *Manager) trackQueue(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.knownQueues[queue] = struct{}{}
}

func (m *Manager) queues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.knownQueues))
	for q := range m.knownQueues {
		out = append(out, q)
	}
	return out
}
