package queue

import (
	"log/slog"
	"math"
	"sync"
)

// Counter names used by the queue core.
const (
	MetricEnqueued       = "enqueued"
	MetricProcessed      = "processed"
	MetricFailed         = "failed"
	MetricRetried        = "retried"
	MetricTimeouts       = "timeouts"
	MetricPoolExhaustion = "thread_pool_exhaustion"
	MetricSystemErrors   = "system_errors"
	MetricDeadLettered   = "dead_lettered"
)

// errorMetrics log on every change regardless of magnitude; they are the
// operational signal that must never be smoothed away.
var errorMetrics = map[string]struct{}{
	MetricFailed:         {},
	MetricTimeouts:       {},
	MetricPoolExhaustion: {},
	MetricSystemErrors:   {},
	MetricDeadLettered:   {},
}

// Metrics is a point-in-time snapshot of the registry, including derived
// fields. Counters are process-local and never persisted; cross-process
// aggregation belongs to the log/metrics sink.
type Metrics struct {
	Enqueued             int64 `json:"enqueued"`
	Processed            int64 `json:"processed"`
	Failed               int64 `json:"failed"`
	Retried              int64 `json:"retried"`
	Timeouts             int64 `json:"timeouts"`
	ThreadPoolExhaustion int64 `json:"thread_pool_exhaustion"`
	SystemErrors         int64 `json:"system_errors"`
	DeadLettered         int64 `json:"dead_lettered"`

	SuccessRate           float64 `json:"success_rate"`
	ThreadPoolUtilization float64 `json:"thread_pool_utilization"`
}

// MetricsRegistry counts queue transitions and emits them as structured
// log events. Emission is event-driven to bound log volume: error-type
// counters log on every change, small counters on every increment, larger
// counters only when crossing a power of ten, and rates only when they
// move by more than the relative threshold since the last emission. Batch
// operations always log their own summary.
type MetricsRegistry struct {
	mu            sync.Mutex
	counters      map[string]int64
	lastRates     map[string]float64
	rateThreshold float64
	utilization   func() float64
	logger        *slog.Logger
}

// NewMetricsRegistry creates a registry logging through the given logger
// (slog.Default when nil) with a 10% rate-emission threshold.
func NewMetricsRegistry(logger *slog.Logger) *MetricsRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsRegistry{
		counters:      make(map[string]int64),
		lastRates:     make(map[string]float64),
		rateThreshold: 0.1,
		logger:        logger,
	}
}

// SetUtilizationFunc wires the executor pool's utilization into snapshots.
func (m *MetricsRegistry) SetUtilizationFunc(fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utilization = fn
}

// Inc increments a counter by one.
func (m *MetricsRegistry) Inc(name string) { m.Add(name, 1) }

// Add increments a counter and emits a log event when the emission policy
// says the change is worth operator attention.
func (m *MetricsRegistry) Add(name string, delta int64) {
	if delta == 0 {
		return
	}

	m.mu.Lock()
	prev := m.counters[name]
	next := prev + delta
	m.counters[name] = next

	emit := m.shouldEmit(name, prev, next)
	var rate float64
	emitRate := false
	if name == MetricProcessed || name == MetricEnqueued {
		rate, emitRate = m.successRateLocked()
	}
	m.mu.Unlock()

	if emit {
		m.logger.Info("queue metric changed",
			slog.String("metric", name),
			slog.Int64("value", next))
	}
	if emitRate {
		m.logger.Info("queue metric changed",
			slog.String("metric", "success_rate"),
			slog.Float64("value", rate))
	}
}

// Get returns the current value of a counter.
func (m *MetricsRegistry) Get(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// LogBatch always emits a summary for a batch operation, regardless of
// any threshold.
func (m *MetricsRegistry) LogBatch(op string, count, failed int) {
	m.logger.Info("queue batch operation",
		slog.String("operation", op),
		slog.Int("count", count),
		slog.Int("failed", failed))
}

// Snapshot returns all counters plus derived fields.
func (m *MetricsRegistry) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Metrics{
		Enqueued:             m.counters[MetricEnqueued],
		Processed:            m.counters[MetricProcessed],
		Failed:               m.counters[MetricFailed],
		Retried:              m.counters[MetricRetried],
		Timeouts:             m.counters[MetricTimeouts],
		ThreadPoolExhaustion: m.counters[MetricPoolExhaustion],
		SystemErrors:         m.counters[MetricSystemErrors],
		DeadLettered:         m.counters[MetricDeadLettered],
	}
	if s.Enqueued > 0 {
		s.SuccessRate = float64(s.Processed) / float64(s.Enqueued)
	}
	if m.utilization != nil {
		s.ThreadPoolUtilization = m.utilization()
	}
	return s
}

// shouldEmit implements the counter emission policy. Callers hold the lock.
func (m *MetricsRegistry) shouldEmit(name string, prev, next int64) bool {
	if _, ok := errorMetrics[name]; ok {
		return true
	}
	if next <= 5 {
		return true
	}
	return crossedPowerOfTen(prev, next)
}

// successRateLocked recomputes processed/enqueued and reports whether the
// rate moved past the relative threshold since its last emission. Callers
// hold the lock.
func (m *MetricsRegistry) successRateLocked() (float64, bool) {
	enqueued := m.counters[MetricEnqueued]
	if enqueued == 0 {
		return 0, false
	}
	rate := float64(m.counters[MetricProcessed]) / float64(enqueued)

	last, seen := m.lastRates["success_rate"]
	if seen {
		if last == 0 {
			if rate == 0 {
				return rate, false
			}
		} else if math.Abs(rate-last)/last <= m.rateThreshold {
			return rate, false
		}
	}
	m.lastRates["success_rate"] = rate
	return rate, true
}

// crossedPowerOfTen reports whether a boundary 10, 100, 1000, ... lies in
// (prev, next].
func crossedPowerOfTen(prev, next int64) bool {
	for boundary := int64(10); boundary <= next; boundary *= 10 {
		if prev < boundary && boundary <= next {
			return true
		}
	}
	return false
}
