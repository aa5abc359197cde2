// Package queue implements an asynchronous job queue on top of a shared
// external store (Redis), with priority ordering, bounded concurrency,
// per-job retry policies, circuit-broken store access and a bounded
// executor pool for blocking work.
//
// The package is organised around a handful of components:
//
//   - Manager       — producer side: enqueue, batch enqueue, dedup,
//     status queries and purging
//   - Worker        — consumer side: N polling loops popping in strict
//     priority order and dispatching to processors
//   - Registry      — maps stored (name, module) references to
//     processors and callbacks; storage never holds code
//   - Store         — the adapter over the external store; RedisStore
//     for production, MemoryStore for tests and local development
//   - ExecutorPool  — bounded slots for blocking processors, with
//     admission-timeout saturation detection
//   - MetricsRegistry — process-local counters with event-driven
//     emission through slog
//
// Delivery is at-least-once; processors are expected to be idempotent.
// Every job reaches exactly one terminal outcome: removed as succeeded,
// or moved to the failures collection (retry-exhausted business faults)
// or system_errors collection (structural faults, never retried).
//
// # Usage
//
// Producer side:
//
//	store, _ := queue.NewRedisStore(client)
//	m, _ := queue.NewManager(store)
//
//	res, err := m.Enqueue(ctx,
//	    ResizeImage{ID: 42},
//	    queue.Ref{Name: "resize_image"},
//	    queue.WithPriority(queue.PriorityHigh),
//	    queue.WithRetryPolicy(retry.Exponential(2, time.Second, time.Minute, 5)),
//	)
//
// Consumer side, usually a separate long-running process:
//
//	registry := queue.NewRegistry()
//	registry.Register(queue.NewProcessor("resize_image",
//	    func(ctx context.Context, e ResizeImage) (any, error) {
//	        return nil, resize(ctx, e.ID)
//	    }))
//
//	w, _ := queue.NewWorker(store, registry, queue.WithConcurrency(8))
//	_ = w.Start(ctx)
//	defer w.Stop()
//
// Ordering is guaranteed only between priority classes at each poll:
// high before normal before low. Within a class the store's list order
// applies, and concurrent loops race freely.
package queue
