package queue_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergnetp/queuekit/pkg/queue"
	"github.com/vergnetp/queuekit/pkg/retry"
)

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, queue.PriorityHigh.Valid())
	assert.True(t, queue.PriorityNormal.Valid())
	assert.True(t, queue.PriorityLow.Valid())
	assert.False(t, queue.Priority("urgent").Valid())
	assert.False(t, queue.Priority("").Valid())
}

func TestRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "resize", queue.Ref{Name: "resize"}.String())
	assert.Equal(t, "images/resize", queue.Ref{Name: "resize", Module: "images"}.String())
	assert.True(t, queue.Ref{}.IsZero())
	assert.False(t, queue.Ref{Name: "x"}.IsZero())
}

func TestQueueKey(t *testing.T) {
	t.Parallel()

	key := queue.QueueKey("emails", queue.PriorityHigh)
	assert.Equal(t, "queuekit:emails:high", key)
	assert.Equal(t, "queuekit:emails:high:delayed", queue.DelayedKey(key))
}

func TestJob_Serialization(t *testing.T) {
	t.Parallel()

	first := time.Now().UTC().Truncate(time.Millisecond)
	job := queue.Job{
		OperationID:    uuid.New(),
		Entity:         json.RawMessage(`{"id":1}`),
		ProcessorName:  "resize",
		Priority:       queue.PriorityNormal,
		QueueName:      "images",
		RetryPolicy:    retry.Fixed(time.Second, 3),
		Attempt:        2,
		FirstAttemptAt: &first,
		EnqueuedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	data, err := json.Marshal(&job)
	require.NoError(t, err)

	// The stored item schema uses the documented field names.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "operation_id")
	assert.Contains(t, raw, "processor_name")
	assert.Contains(t, raw, "retry_policy")
	assert.Contains(t, raw, "first_attempt_time")
	assert.NotContains(t, raw, "processor_module")

	var got queue.Job
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, job.OperationID, got.OperationID)
	assert.Equal(t, job.RetryPolicy, got.RetryPolicy)
	assert.Equal(t, job.Attempt, got.Attempt)
	require.NotNil(t, got.FirstAttemptAt)
	assert.True(t, got.FirstAttemptAt.Equal(first))
}

func TestJob_Key(t *testing.T) {
	t.Parallel()

	job := queue.Job{QueueName: "emails", Priority: queue.PriorityLow}
	assert.Equal(t, "queuekit:emails:low", job.Key())
}
