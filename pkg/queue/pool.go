package queue

import (
	"context"
	"sync/atomic"
	"time"
)

// ExecutorPool bounds how many blocking processors run at once. Admission
// uses a short timeout purely to detect saturation: a worker loop never
// waits indefinitely for a slot, it learns "the pool is busy" and applies
// capacity backoff instead.
type ExecutorPool struct {
	sem              chan struct{}
	busy             atomic.Int64
	admissionTimeout time.Duration
}

// NewExecutorPool creates a pool with the given number of slots.
// Non-positive sizes fall back to 1; non-positive admission timeouts fall
// back to 500ms.
func NewExecutorPool(size int, admissionTimeout time.Duration) *ExecutorPool {
	if size <= 0 {
		size = 1
	}
	if admissionTimeout <= 0 {
		admissionTimeout = 500 * time.Millisecond
	}
	return &ExecutorPool{
		sem:              make(chan struct{}, size),
		admissionTimeout: admissionTimeout,
	}
}

// Acquire leases an executor slot, waiting at most the admission timeout.
// On success it returns a release function that must be called exactly
// once. On saturation it returns ErrPoolSaturated.
func (p *ExecutorPool) Acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(p.admissionTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		p.busy.Add(1)
		var released atomic.Bool
		return func() {
			if released.CompareAndSwap(false, true) {
				p.busy.Add(-1)
				<-p.sem
			}
		}, nil
	case <-timer.C:
		return nil, ErrPoolSaturated
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of slots.
func (p *ExecutorPool) Size() int { return cap(p.sem) }

// Busy returns the number of leased slots.
func (p *ExecutorPool) Busy() int { return int(p.busy.Load()) }

// Utilization returns busy/size in [0, 1].
func (p *ExecutorPool) Utilization() float64 {
	return float64(p.busy.Load()) / float64(cap(p.sem))
}
