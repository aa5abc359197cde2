package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergnetp/queuekit/pkg/breaker"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := breaker.New(3, 1, time.Minute)

	for n := 0; n < 2; n++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, breaker.StateClosed, b.State())

	require.True(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, breaker.StateOpen, b.State())
	assert.False(t, b.Allow(), "open circuit must reject without a network attempt")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := breaker.New(3, 1, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenProbes(t *testing.T) {
	t.Parallel()

	t.Run("cooldown admits bounded probes", func(t *testing.T) {
		t.Parallel()

		b := breaker.New(1, 2, 20*time.Millisecond)
		b.RecordFailure()
		require.False(t, b.Allow())

		time.Sleep(30 * time.Millisecond)

		assert.True(t, b.Allow())
		assert.True(t, b.Allow())
		assert.False(t, b.Allow(), "probe budget exhausted")
	})

	t.Run("probe success closes the circuit", func(t *testing.T) {
		t.Parallel()

		b := breaker.New(1, 1, 20*time.Millisecond)
		b.RecordFailure()

		time.Sleep(30 * time.Millisecond)
		require.True(t, b.Allow())
		b.RecordSuccess()

		assert.Equal(t, breaker.StateClosed, b.State())
		assert.True(t, b.Allow())
	})

	t.Run("probe failure reopens and restarts cooldown", func(t *testing.T) {
		t.Parallel()

		b := breaker.New(1, 1, 30*time.Millisecond)
		b.RecordFailure()

		time.Sleep(40 * time.Millisecond)
		require.True(t, b.Allow())
		b.RecordFailure()

		assert.False(t, b.Allow(), "cooldown clock must restart after a failed probe")

		time.Sleep(40 * time.Millisecond)
		assert.True(t, b.Allow())
	})
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := breaker.New(1, 1, time.Minute)
	b.RecordFailure()
	require.Equal(t, breaker.StateOpen, b.State())

	b.Reset()

	assert.Equal(t, breaker.StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_Stats(t *testing.T) {
	t.Parallel()

	b := breaker.New(5, 1, time.Minute)
	b.RecordFailure()
	b.RecordFailure()

	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 2, stats.Failures)
	assert.True(t, stats.OpenedAt.IsZero())
}

func TestBreaker_DefaultsOnInvalidInput(t *testing.T) {
	t.Parallel()

	b := breaker.New(0, 0, 0)
	require.NotNil(t, b)
	assert.Equal(t, breaker.StateClosed, b.State())
}
