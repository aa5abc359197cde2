package queue

import (
	"log/slog"
	"time"

	"github.com/vergnetp/queuekit/pkg/retry"
)

// WorkerOption is a functional option for configuring a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	concurrency        int
	pollInterval       time.Duration
	workTimeout        time.Duration
	shutdownTimeout    time.Duration
	poolSize           int
	admissionTimeout   time.Duration
	maxRequeueAttempts int
	requeuePolicy      retry.Policy
	backupTTL          time.Duration
	serializer         Serializer
	metrics            *MetricsRegistry
	logger             *slog.Logger
}

func defaultWorkerOptions() *workerOptions {
	return &workerOptions{
		queues:             []string{DefaultQueueName},
		concurrency:        4,
		pollInterval:       time.Second,
		workTimeout:        5 * time.Minute,
		shutdownTimeout:    30 * time.Second,
		poolSize:           8,
		admissionTimeout:   500 * time.Millisecond,
		maxRequeueAttempts: 10,
		requeuePolicy:      retry.Exponential(2, time.Second, time.Minute, 10, retry.WithJitter(retry.DefaultJitter)),
		backupTTL:          time.Hour,
		serializer:         JSONSerializer{},
		logger:             slog.Default(),
	}
}

// WithWorkerQueues sets which queues the worker polls.
func WithWorkerQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithConcurrency sets the number of concurrent polling loops.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle loop sleeps between polls.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithWorkTimeout sets the default per-attempt timeout for non-blocking
// processors. Jobs may override it; the effective timeout never exceeds
// the job's remaining total budget.
func WithWorkTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.workTimeout = d
		}
	}
}

// WithShutdownTimeout sets the grace period Stop waits for in-flight
// attempts before force-cancelling non-blocking work.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithPoolSize sets the number of executor slots for blocking processors.
func WithPoolSize(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithAdmissionTimeout sets how long slot acquisition may wait before the
// pool is declared saturated. This is a detection bound, never the job's
// execution timeout.
func WithAdmissionTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.admissionTimeout = d
		}
	}
}

// WithMaxRequeueAttempts caps how many times a job may be requeued due to
// pool saturation before it is dead-lettered. Separate from the job's
// retry policy.
func WithMaxRequeueAttempts(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxRequeueAttempts = n
		}
	}
}

// WithRequeuePolicy sets the backoff applied to pool-exhaustion requeues.
func WithRequeuePolicy(policy retry.Policy) WorkerOption {
	return func(o *workerOptions) {
		if policy.MaxAttempts > 0 {
			o.requeuePolicy = policy
		}
	}
}

// WithBackupTTL sets how long the backup copy of an in-flight item
// survives before the store expires it.
func WithBackupTTL(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.backupTTL = d
		}
	}
}

// WithWorkerSerializer sets the serializer for stored items.
func WithWorkerSerializer(s Serializer) WorkerOption {
	return func(o *workerOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithWorkerMetrics shares an existing metrics registry, typically the
// one a co-located manager logs to.
func WithWorkerMetrics(m *MetricsRegistry) WorkerOption {
	return func(o *workerOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerConfig applies an env-derived Config in one go. Individual
// options may still override specific fields afterwards.
func WithWorkerConfig(cfg Config) WorkerOption {
	return func(o *workerOptions) {
		WithConcurrency(cfg.Concurrency)(o)
		WithPollInterval(cfg.PollInterval)(o)
		WithWorkTimeout(cfg.WorkTimeout)(o)
		WithShutdownTimeout(cfg.ShutdownTimeout)(o)
		WithPoolSize(cfg.PoolSize)(o)
		WithAdmissionTimeout(cfg.AdmissionTimeout)(o)
		WithMaxRequeueAttempts(cfg.MaxRequeueAttempts)(o)
		WithBackupTTL(cfg.BackupTTL)(o)
	}
}
