package queue

import (
	"log/slog"
	"time"

	"github.com/vergnetp/queuekit/pkg/retry"
)

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	defaultQueue    string
	defaultPriority Priority
	defaultPolicy   retry.Policy
	dedupWindow     time.Duration
	serializer      Serializer
	metrics         *MetricsRegistry
	logger          *slog.Logger
}

func defaultManagerOptions() *managerOptions {
	return &managerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		defaultPolicy:   retry.Exponential(2, time.Second, time.Minute, 3),
		dedupWindow:     time.Minute,
		serializer:      JSONSerializer{},
		logger:          slog.Default(),
	}
}

// WithDefaultQueue sets the queue used when Enqueue names none.
func WithDefaultQueue(queue string) ManagerOption {
	return func(o *managerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the priority used when Enqueue names none.
func WithDefaultPriority(priority Priority) ManagerOption {
	return func(o *managerOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// WithDefaultRetryPolicy sets the retry policy embedded into jobs that do
// not carry their own.
func WithDefaultRetryPolicy(policy retry.Policy) ManagerOption {
	return func(o *managerOptions) {
		if policy.MaxAttempts > 0 {
			o.defaultPolicy = policy
		}
	}
}

// WithDedupWindow sets how long a dedup key suppresses equivalent
// enqueues. Best-effort, not a distributed lock.
func WithDedupWindow(window time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if window > 0 {
			o.dedupWindow = window
		}
	}
}

// WithManagerSerializer sets the default serializer for entities and
// stored items.
func WithManagerSerializer(s Serializer) ManagerOption {
	return func(o *managerOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithManagerMetrics shares an existing metrics registry, typically the
// one a co-located worker logs to.
func WithManagerMetrics(m *MetricsRegistry) ManagerOption {
	return func(o *managerOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithManagerLogger sets the logger for the manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// EnqueueOption is a functional option for a single Enqueue or
// EnqueueBatch call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue      string
	priority   Priority
	policy     retry.Policy
	onSuccess  *Ref
	onFailure  *Ref
	timeout    time.Duration
	dedupKey   string
	serializer Serializer
}

func (m *Manager) defaultEnqueueOptions() *enqueueOptions {
	return &enqueueOptions{
		queue:      m.defaultQueue,
		priority:   m.defaultPriority,
		policy:     m.defaultPolicy,
		serializer: m.serializer,
	}
}

// WithQueue routes the job to a named queue.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority sets the job's priority class.
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithRetryPolicy embeds a retry policy into the job.
func WithRetryPolicy(policy retry.Policy) EnqueueOption {
	return func(o *enqueueOptions) {
		if policy.MaxAttempts > 0 {
			o.policy = policy
		}
	}
}

// WithOnSuccess names the callback invoked after the job succeeds.
func WithOnSuccess(ref Ref) EnqueueOption {
	return func(o *enqueueOptions) {
		if !ref.IsZero() {
			o.onSuccess = &ref
		}
	}
}

// WithOnFailure names the callback invoked after the job is dead-lettered.
func WithOnFailure(ref Ref) EnqueueOption {
	return func(o *enqueueOptions) {
		if !ref.IsZero() {
			o.onFailure = &ref
		}
	}
}

// WithTimeout overrides the worker's per-attempt work timeout for this job.
func WithTimeout(timeout time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithDedupKey suppresses equivalent enqueues within the dedup window.
func WithDedupKey(key string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.dedupKey = key
	}
}

// WithSerializer overrides the serializer for this call.
func WithSerializer(s Serializer) EnqueueOption {
	return func(o *enqueueOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}
