package queue_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vergnetp/queuekit/pkg/queue"
)

// countingLog collects emitted log lines so tests can assert on the
// emission policy, not just counter values.
type countingLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *countingLog) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *countingLog) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := strings.TrimSpace(c.buf.String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func newCountingRegistry() (*queue.MetricsRegistry, *countingLog) {
	sink := &countingLog{}
	logger := slog.New(slog.NewJSONHandler(sink, nil))
	return queue.NewMetricsRegistry(logger), sink
}

func TestMetricsRegistry_Counters(t *testing.T) {
	t.Parallel()

	m, _ := newCountingRegistry()

	m.Inc(queue.MetricProcessed)
	m.Add(queue.MetricProcessed, 4)
	assert.Equal(t, int64(5), m.Get(queue.MetricProcessed))

	// Zero deltas are ignored.
	m.Add(queue.MetricProcessed, 0)
	assert.Equal(t, int64(5), m.Get(queue.MetricProcessed))
}

func TestMetricsRegistry_ErrorMetricsAlwaysEmit(t *testing.T) {
	t.Parallel()

	m, sink := newCountingRegistry()

	for n := 0; n < 20; n++ {
		m.Inc(queue.MetricFailed)
	}

	// Every failure increment logs, even well past the small-counter range.
	assert.Len(t, sink.lines(), 20)
}

func TestMetricsRegistry_LargeCountersEmitOnDecadeCrossings(t *testing.T) {
	t.Parallel()

	m, sink := newCountingRegistry()

	for n := 0; n < 200; n++ {
		m.Inc(queue.MetricRetried)
	}

	// 1..5 each emit, then only the 10 and 100 crossings.
	assert.Len(t, sink.lines(), 7)
}

func TestMetricsRegistry_SuccessRateThreshold(t *testing.T) {
	t.Parallel()

	m, sink := newCountingRegistry()

	m.Add(queue.MetricEnqueued, 100)
	m.Add(queue.MetricProcessed, 50)
	before := len(sink.lines())

	// 50 -> 51 of 100 is a 2% relative move: below the 10% threshold,
	// no success_rate line is emitted for it.
	m.Inc(queue.MetricProcessed)
	var rateLines int
	for _, line := range sink.lines()[before:] {
		if strings.Contains(line, "success_rate") {
			rateLines++
		}
	}
	assert.Zero(t, rateLines)

	// 51 -> 90 of 100 is a 76% relative move and must emit.
	m.Add(queue.MetricProcessed, 39)
	for _, line := range sink.lines()[before:] {
		if strings.Contains(line, "success_rate") {
			rateLines++
		}
	}
	assert.Equal(t, 1, rateLines)
}

func TestMetricsRegistry_LogBatch(t *testing.T) {
	t.Parallel()

	m, sink := newCountingRegistry()

	m.LogBatch("enqueue_batch", 500, 0)
	m.LogBatch("enqueue_batch", 500, 2)

	// Batches always log, regardless of any threshold.
	lines := sink.lines()
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "queue batch operation")
}

func TestMetricsRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	m, _ := newCountingRegistry()
	m.SetUtilizationFunc(func() float64 { return 0.25 })

	m.Add(queue.MetricEnqueued, 10)
	m.Add(queue.MetricProcessed, 8)
	m.Inc(queue.MetricFailed)
	m.Inc(queue.MetricDeadLettered)

	s := m.Snapshot()
	assert.Equal(t, int64(10), s.Enqueued)
	assert.Equal(t, int64(8), s.Processed)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(1), s.DeadLettered)
	assert.InDelta(t, 0.8, s.SuccessRate, 0.001)
	assert.InDelta(t, 0.25, s.ThreadPoolUtilization, 0.001)
}

func TestMetricsRegistry_ConcurrentUse(t *testing.T) {
	t.Parallel()

	m, _ := newCountingRegistry()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				m.Inc(queue.MetricEnqueued)
				m.Inc(queue.MetricProcessed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), m.Get(queue.MetricEnqueued))
	assert.Equal(t, int64(800), m.Get(queue.MetricProcessed))
}
