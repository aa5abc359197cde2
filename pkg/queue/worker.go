package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vergnetp/queuekit/pkg/retry"
)

// promoteBatchSize bounds how many delayed items a single promotion cycle
// moves per key.
const promoteBatchSize = 100

// blockingAbandonGrace is how long Stop waits for still-running blocking
// processors after the graceful period expired, before abandoning them.
const blockingAbandonGrace = 2 * time.Second

// Worker is the consumer-facing side of the queue: a set of concurrent
// polling loops that pop items in strict priority order, dispatch them to
// either inline execution (non-blocking processors) or the bounded
// executor pool (blocking processors), and decide retries through the
// job's own retry policy.
//
// Workers hold no shared in-process state beyond the store connection;
// any number of them, across processes and machines, can poll the same
// queues.
type Worker struct {
	store      Store
	registry   *Registry
	callbacks  *callbackExecutor
	metrics    *MetricsRegistry
	pool       *ExecutorPool
	serializer Serializer
	logger     *slog.Logger
	workerID   uuid.UUID

	queues             []string
	pollKeys           []string
	concurrency        int
	pollInterval       time.Duration
	workTimeout        time.Duration
	shutdownTimeout    time.Duration
	maxRequeueAttempts int
	requeuePolicy      retry.Policy
	backupTTL          time.Duration

	mu         sync.Mutex
	cancel     context.CancelFunc
	loopCtx    context.Context
	execCtx    context.Context
	execCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorker creates a worker polling the given store and resolving
// processors against the given registry.
func NewWorker(store Store, registry *Registry, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := defaultWorkerOptions()
	for _, opt := range opts {
		opt(options)
	}

	pool := NewExecutorPool(options.poolSize, options.admissionTimeout)

	metrics := options.metrics
	if metrics == nil {
		metrics = NewMetricsRegistry(options.logger)
	}
	metrics.SetUtilizationFunc(pool.Utilization)

	return &Worker{
		store:              store,
		registry:           registry,
		callbacks:          newCallbackExecutor(registry, options.logger),
		metrics:            metrics,
		pool:               pool,
		serializer:         options.serializer,
		logger:             options.logger,
		workerID:           uuid.New(),
		queues:             options.queues,
		pollKeys:           pollKeys(options.queues),
		concurrency:        options.concurrency,
		pollInterval:       options.pollInterval,
		workTimeout:        options.workTimeout,
		shutdownTimeout:    options.shutdownTimeout,
		maxRequeueAttempts: options.maxRequeueAttempts,
		requeuePolicy:      options.requeuePolicy,
		backupTTL:          options.backupTTL,
	}, nil
}

// pollKeys flattens queues x priorities into the strict poll order: for
// each queue, high before normal before low.
func pollKeys(queues []string) []string {
	keys := make([]string, 0, len(queues)*len(priorityOrder))
	for _, queue := range queues {
		for _, p := range priorityOrder {
			keys = append(keys, QueueKey(queue, p))
		}
	}
	return keys
}

// Metrics returns the worker's metrics registry.
func (w *Worker) Metrics() *MetricsRegistry { return w.metrics }

// Pool returns the executor pool, for monitoring.
func (w *Worker) Pool() *ExecutorPool { return w.pool }

// Start launches the polling loops and the delayed-item promoter in the
// background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}
	if w.registry.Size() == 0 {
		return ErrNoProcessors
	}

	w.loopCtx, w.cancel = context.WithCancel(ctx)
	// Outcome writes and in-flight execution are detached from the loop
	// context so graceful shutdown lets attempts finish and record their
	// result; execCancel is the force-cancel lever.
	w.execCtx, w.execCancel = context.WithCancel(context.Background())

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.pollLoop(i)
	}
	w.wg.Add(1)
	go w.promoteLoop()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("concurrency", w.concurrency),
		slog.Int("pool_size", w.pool.Size()))

	return nil
}

// Stop shuts the worker down: admissions stop first, in-flight attempts
// get the shutdown grace period to finish naturally, then remaining
// non-blocking work is force-cancelled. Blocking processors cannot be
// interrupted; ones still running after a final short wait are abandoned.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}
	cancel := w.cancel
	execCancel := w.execCancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for in-flight attempts",
		slog.String("worker_id", w.workerID.String()))

	if w.waitWithTimeout(w.shutdownTimeout) {
		execCancel()
		w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
		return nil
	}

	execCancel()

	if !w.waitWithTimeout(blockingAbandonGrace) {
		w.logger.Warn("abandoning blocking processors still running after grace period",
			slog.String("worker_id", w.workerID.String()),
			slog.Int("busy_slots", w.pool.Busy()))
		return nil
	}

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup: start, block until the
// context ends, then stop.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// waitWithTimeout waits for the worker's goroutines up to d. Returns true
// when everything finished in time.
func (w *Worker) waitWithTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// pollLoop is one of the N concurrent consumer loops. Each cycle pops the
// next eligible item in strict priority order; an empty poll or a store
// error sleeps out the poll interval. Store errors are never charged to
// any job.
func (w *Worker) pollLoop(loop int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.loopCtx.Done():
			return
		default:
		}

		item, key, err := w.store.PopFirst(w.loopCtx, w.pollKeys...)
		if err != nil {
			switch {
			case errors.Is(err, ErrEmptyQueue):
				// Normal idle cycle.
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, ErrCircuitOpen):
				w.logger.Debug("store circuit open, backing off",
					slog.String("worker_id", w.workerID.String()),
					slog.Int("loop", loop))
			default:
				w.logger.Warn("poll failed",
					slog.String("worker_id", w.workerID.String()),
					slog.Int("loop", loop),
					slog.String("error", err.Error()))
			}
			w.sleep()
			continue
		}

		w.handleItem(item, key)
	}
}

// promoteLoop periodically moves items whose visibility delay elapsed
// back onto their collections.
func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.loopCtx.Done():
			return
		case <-ticker.C:
			for _, key := range w.pollKeys {
				if err := w.store.PromoteDue(w.loopCtx, key, promoteBatchSize); err != nil &&
					!errors.Is(err, context.Canceled) {
					w.logger.Debug("promotion failed",
						slog.String("key", key),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (w *Worker) sleep() {
	select {
	case <-w.loopCtx.Done():
	case <-time.After(w.pollInterval):
	}
}

// handleItem owns a popped item from deserialization to terminal outcome
// or requeue.
func (w *Worker) handleItem(item []byte, key string) {
	var job Job
	if err := w.serializer.Unmarshal(item, &job); err != nil {
		w.systemError(nil, item, errors.Join(ErrDeserializeJob, err))
		return
	}

	if job.FirstAttemptAt == nil {
		now := time.Now()
		job.FirstAttemptAt = &now
	}

	// Backup copy outlives a crashed processor; the store expires it.
	if err := w.store.SaveProcessing(w.execCtx, job.OperationID.String(), item, w.backupTTL); err != nil {
		w.logger.Warn("failed to save processing backup",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
	}

	w.logger.Debug("job popped",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.String("queue_key", key),
		slog.Int("attempt", job.Attempt))

	proc, err := w.registry.Resolve(job.ProcessorRef())
	if err != nil {
		w.systemError(&job, nil, err)
		return
	}

	if proc.Blocking() {
		w.dispatchBlocking(&job, proc)
	} else {
		w.executeInline(&job, proc)
	}
}

// executeInline runs a non-blocking processor in the polling loop with a
// cancellation-capable timeout: the smaller of the per-attempt work
// timeout and whatever total-budget time remains.
func (w *Worker) executeInline(job *Job, proc Processor) {
	effective, ok := w.effectiveTimeout(job)
	if !ok {
		w.metrics.Inc(MetricFailed)
		w.deadLetter(job, ErrTotalBudgetExceeded)
		return
	}

	ctx, cancel := context.WithTimeout(w.execCtx, effective)
	defer cancel()

	start := time.Now()
	result, err := safeProcess(ctx, proc, job.Entity)
	duration := time.Since(start)

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		w.metrics.Inc(MetricTimeouts)
		err = fmt.Errorf("%w (%s elapsed of %s)", ErrWorkTimeout, duration.Round(time.Millisecond), effective)
	}

	if err != nil {
		w.handleFailure(job, err)
		return
	}
	w.handleSuccess(job, result, duration)
}

// dispatchBlocking leases an executor slot within the admission timeout
// and runs the processor to completion in the background, freeing the
// polling loop. Saturation is a capacity signal with its own requeue
// ceiling, never a job failure.
func (w *Worker) dispatchBlocking(job *Job, proc Processor) {
	release, err := w.pool.Acquire(w.loopCtx)
	if err != nil {
		if errors.Is(err, ErrPoolSaturated) {
			w.handleExhaustion(job)
			return
		}
		// Shutting down mid-item: hand it straight back.
		w.requeue(job, 0)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer release()

		start := time.Now()
		// The slot is never forcibly interrupted; blocking work is not
		// assumed to be cancellable.
		result, err := safeProcess(w.execCtx, proc, job.Entity)
		duration := time.Since(start)

		if err != nil {
			w.handleFailure(job, err)
			return
		}
		w.handleSuccess(job, result, duration)
	}()
}

// effectiveTimeout computes min(per-attempt timeout, remaining total
// budget). The second return is false when the budget is already spent.
func (w *Worker) effectiveTimeout(job *Job) (time.Duration, bool) {
	base := w.workTimeout
	if job.Timeout > 0 {
		base = job.Timeout
	}

	if job.RetryPolicy.Timeout > 0 && job.FirstAttemptAt != nil {
		remaining := job.RetryPolicy.Timeout - time.Since(*job.FirstAttemptAt)
		if remaining <= 0 {
			return 0, false
		}
		if remaining < base {
			base = remaining
		}
	}
	return base, true
}

// handleSuccess removes the item's backup copy, updates metrics and fires
// the success callback, in that order; the terminal state is decided
// before any callback runs.
func (w *Worker) handleSuccess(job *Job, result any, duration time.Duration) {
	if err := w.store.DeleteProcessing(w.execCtx, job.OperationID.String()); err != nil {
		w.logger.Warn("failed to delete processing backup",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
	}

	w.metrics.Inc(MetricProcessed)
	w.logger.Info("job processed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.String("processor", job.ProcessorRef().String()),
		slog.Int("attempt", job.Attempt+1),
		slog.Duration("duration", duration))

	w.callbacks.notifySuccess(w.execCtx, job, result)
}

// handleFailure applies the job's retry policy: dead-letter when attempts
// are exhausted or the next delay would overrun the total budget,
// otherwise re-push with the computed visibility delay.
func (w *Worker) handleFailure(job *Job, execErr error) {
	job.Attempt++
	job.LastError = execErr.Error()
	w.metrics.Inc(MetricFailed)

	w.logger.Error("job attempt failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.String("processor", job.ProcessorRef().String()),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.RetryPolicy.MaxAttempts),
		slog.String("error", execErr.Error()))

	if job.RetryPolicy.Exhausted(job.Attempt) {
		w.deadLetter(job, execErr)
		return
	}

	now := time.Now()
	if job.FirstAttemptAt != nil && job.RetryPolicy.WouldExceedTimeout(*job.FirstAttemptAt, now, job.Attempt) {
		w.deadLetter(job, errors.Join(ErrTotalBudgetExceeded, execErr))
		return
	}

	w.metrics.Inc(MetricRetried)
	w.requeue(job, job.RetryPolicy.DelayForAttempt(job.Attempt))
}

// handleExhaustion requeues a job that found the executor pool saturated.
// The requeue counter has its own ceiling and backoff, independent of the
// job's retry policy.
func (w *Worker) handleExhaustion(job *Job) {
	w.metrics.Inc(MetricPoolExhaustion)
	job.RequeueCount++

	w.logger.Warn("executor pool saturated",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.Int("requeue_count", job.RequeueCount),
		slog.Int("max_requeue_attempts", w.maxRequeueAttempts),
		slog.Float64("utilization", w.pool.Utilization()))

	if job.RequeueCount > w.maxRequeueAttempts {
		job.LastError = ErrPoolSaturated.Error()
		w.deadLetter(job, fmt.Errorf("%w: requeue ceiling of %d reached", ErrPoolSaturated, w.maxRequeueAttempts))
		return
	}

	w.requeue(job, w.requeuePolicy.DelayForAttempt(job.RequeueCount))
}

// requeue re-pushes the (mutated) job with a visibility delay, then drops
// the backup copy. The push happens first so a crash between the two
// duplicates rather than loses the item.
func (w *Worker) requeue(job *Job, delay time.Duration) {
	data, err := w.serializer.Marshal(job)
	if err != nil {
		w.logger.Error("failed to serialize job for requeue",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
		return
	}

	if delay > 0 {
		err = w.store.PushDelayed(w.execCtx, job.Key(), data, delay)
	} else {
		err = w.store.Push(w.execCtx, job.Key(), data)
	}
	if err != nil {
		// The backup copy stays until its TTL; the item is not lost.
		w.logger.Error("failed to requeue job",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := w.store.DeleteProcessing(w.execCtx, job.OperationID.String()); err != nil {
		w.logger.Warn("failed to delete processing backup",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
	}

	w.logger.Info("job retry scheduled",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.Int("attempt", job.Attempt),
		slog.Duration("delay", delay))
}

// deadLetter moves the job to the failures collection and fires the
// failure callback exactly once.
func (w *Worker) deadLetter(job *Job, cause error) {
	job.LastError = cause.Error()

	data, err := w.serializer.Marshal(job)
	if err != nil {
		w.logger.Error("failed to serialize job for dead-letter",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := w.store.Push(w.execCtx, FailuresKey, data); err != nil {
		w.logger.Error("failed to move job to failures",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := w.store.DeleteProcessing(w.execCtx, job.OperationID.String()); err != nil {
		w.logger.Warn("failed to delete processing backup",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("error", err.Error()))
	}

	w.metrics.Inc(MetricDeadLettered)
	w.logger.Warn("job dead-lettered",
		slog.String("worker_id", w.workerID.String()),
		slog.String("operation_id", job.OperationID.String()),
		slog.String("processor", job.ProcessorRef().String()),
		slog.Int("attempt", job.Attempt),
		slog.String("error", cause.Error()))

	w.callbacks.notifyFailure(w.execCtx, job, cause)
}

// systemError routes structurally unprocessable items straight to the
// system_errors collection. These are never retried: an unresolvable
// reference or an undecodable payload will not fix itself.
func (w *Worker) systemError(job *Job, raw []byte, cause error) {
	w.metrics.Inc(MetricSystemErrors)

	payload := raw
	if job != nil {
		job.LastError = cause.Error()
		if data, err := w.serializer.Marshal(job); err == nil {
			payload = data
		}
	}

	if err := w.store.Push(w.execCtx, SystemErrorsKey, payload); err != nil {
		w.logger.Error("failed to record system error",
			slog.String("error", err.Error()))
	}

	if job != nil {
		if err := w.store.DeleteProcessing(w.execCtx, job.OperationID.String()); err != nil {
			w.logger.Warn("failed to delete processing backup",
				slog.String("operation_id", job.OperationID.String()),
				slog.String("error", err.Error()))
		}
		w.logger.Error("job failed with system error",
			slog.String("worker_id", w.workerID.String()),
			slog.String("operation_id", job.OperationID.String()),
			slog.String("processor", job.ProcessorRef().String()),
			slog.String("error", cause.Error()))
		w.callbacks.notifyFailure(w.execCtx, job, cause)
		return
	}

	w.logger.Error("undecodable item moved to system errors",
		slog.String("worker_id", w.workerID.String()),
		slog.String("error", cause.Error()))
}

// safeProcess runs a processor with panic recovery; a panic is a failure
// like any other.
func safeProcess(ctx context.Context, proc Processor, entity json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in processor %q: %v", proc.Name(), r)
		}
	}()
	return proc.Process(ctx, entity)
}
