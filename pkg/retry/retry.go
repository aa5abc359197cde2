package retry

import (
	"math"
	"math/rand"
	"time"
)

// DefaultJitter is the symmetric jitter factor applied to exponential
// policies (±10%) to avoid synchronized retry storms.
const DefaultJitter = 0.1

// Policy describes how failed attempts are retried. It is a plain
// serializable value so it can travel with a stored job rather than
// being re-declared on the consumer side.
//
// Delays holds the un-jittered per-attempt delay sequence. Attempt n
// (1-indexed) uses Delays[n-1]; attempts beyond the sequence reuse the
// last entry. Jitter, when non-zero, is applied at read time only and
// never baked into the stored sequence.
type Policy struct {
	MaxAttempts int             `json:"max_attempts"`
	Delays      []time.Duration `json:"delays"`
	// Timeout caps total wall-clock time since the first attempt across
	// all retries. Zero means no total-budget cap; the policy is bounded
	// only by MaxAttempts.
	Timeout time.Duration `json:"timeout,omitempty"`
	Jitter  float64       `json:"jitter,omitempty"`
}

// Option configures optional policy fields.
type Option func(*Policy)

// WithTimeout caps the total elapsed time across all attempts.
func WithTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Timeout = d
		}
	}
}

// WithJitter sets the symmetric jitter factor (0 disables jitter).
func WithJitter(f float64) Option {
	return func(p *Policy) {
		if f >= 0 && f <= 1 {
			p.Jitter = f
		}
	}
}

// WithMaxAttempts overrides the attempt ceiling. Mostly useful with
// Custom, where the ceiling otherwise defaults to len(delays).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(delay time.Duration, maxAttempts int, opts ...Option) Policy {
	if delay < 0 {
		delay = 0
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delays := make([]time.Duration, maxAttempts)
	for i := range delays {
		delays[i] = delay
	}

	p := Policy{MaxAttempts: maxAttempts, Delays: delays}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Exponential returns a policy where attempt n waits
// clamp(minDelay * base^(n-1), minDelay, maxDelay). Symmetric jitter of
// DefaultJitter is applied at read time; override with WithJitter.
func Exponential(base float64, minDelay, maxDelay time.Duration, maxAttempts int, opts ...Option) Policy {
	if base <= 1 {
		base = 2
	}
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delays := make([]time.Duration, maxAttempts)
	for i := range delays {
		d := time.Duration(float64(minDelay) * math.Pow(base, float64(i)))
		if d < minDelay {
			d = minDelay
		}
		if d > maxDelay {
			d = maxDelay
		}
		delays[i] = d
	}

	p := Policy{MaxAttempts: maxAttempts, Delays: delays, Jitter: DefaultJitter}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Custom returns a policy backed by an explicit delay sequence.
// MaxAttempts defaults to len(delays).
func Custom(delays []time.Duration, opts ...Option) Policy {
	cloned := make([]time.Duration, len(delays))
	copy(cloned, delays)

	p := Policy{MaxAttempts: len(cloned), Delays: cloned}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// DelayForAttempt returns the visibility delay before retry attempt n
// (1-indexed), with jitter applied. Deterministic given n except for the
// bounded random jitter.
func (p Policy) DelayForAttempt(n int) time.Duration {
	base := p.baseDelay(n)
	if base <= 0 || p.Jitter <= 0 {
		return base
	}

	// Random factor in [1-Jitter, 1+Jitter].
	factor := 1 + (rand.Float64()*2-1)*p.Jitter
	d := time.Duration(float64(base) * factor)
	if d < 0 {
		d = 0
	}
	return d
}

// Exhausted reports whether the given attempt count has reached the
// policy's ceiling.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// WouldExceedTimeout reports whether scheduling retry attempt n would push
// the job past its total wall-clock budget. It compares elapsed time plus
// the un-jittered next delay against Timeout, so the answer is monotonic
// in elapsed time. Always false when no timeout is set or the job has not
// been attempted yet.
func (p Policy) WouldExceedTimeout(firstAttempt, now time.Time, n int) bool {
	if p.Timeout <= 0 || firstAttempt.IsZero() {
		return false
	}
	return now.Sub(firstAttempt)+p.baseDelay(n) > p.Timeout
}

// baseDelay returns the un-jittered delay for attempt n. Attempts past
// the end of the sequence reuse the final delay.
func (p Policy) baseDelay(n int) time.Duration {
	if n <= 0 || len(p.Delays) == 0 {
		return 0
	}
	if n > len(p.Delays) {
		n = len(p.Delays)
	}
	return p.Delays[n-1]
}
