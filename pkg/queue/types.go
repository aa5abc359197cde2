package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vergnetp/queuekit/pkg/retry"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// Priority represents a job priority class. Ordering is guaranteed only
// between classes: at every poll, high is preferred over normal, normal
// over low. There is no FIFO guarantee across classes.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityNormal  Priority = "normal"
	PriorityLow     Priority = "low"
	PriorityDefault Priority = PriorityNormal
)

// Valid checks if the priority is one of the three classes
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// priorityOrder is the strict poll order per cycle.
var priorityOrder = [...]Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Ref identifies a processor or callback by name and optional module
// namespace. Storage never holds executable code; refs are resolved
// against a Registry on the worker side.
type Ref struct {
	Name   string `json:"name"`
	Module string `json:"module,omitempty"`
}

// IsZero reports whether the ref names nothing.
func (r Ref) IsZero() bool { return r.Name == "" }

// String returns "module/name", or just the name when no module is set.
func (r Ref) String() string {
	if r.Module == "" {
		return r.Name
	}
	return r.Module + "/" + r.Name
}

// Job is the unit of work as stored in the queue. The JSON form is the
// stored item schema; a Job round-trips through the store on every
// attempt, carrying its own retry policy with it.
type Job struct {
	OperationID     uuid.UUID       `json:"operation_id"`
	Entity          json.RawMessage `json:"entity"`
	ProcessorName   string          `json:"processor_name"`
	ProcessorModule string          `json:"processor_module,omitempty"`
	Priority        Priority        `json:"priority"`
	QueueName       string          `json:"queue_name"`
	RetryPolicy     retry.Policy    `json:"retry_policy"`
	OnSuccess       *Ref            `json:"on_success_ref,omitempty"`
	OnFailure       *Ref            `json:"on_failure_ref,omitempty"`
	// Timeout overrides the worker's per-attempt work timeout when set.
	Timeout  time.Duration `json:"timeout,omitempty"`
	DedupKey string        `json:"dedup_key,omitempty"`
	// Attempt counts completed execution attempts, starting at 0.
	Attempt int `json:"attempt"`
	// RequeueCount counts pool-exhaustion requeues. It has its own
	// ceiling, separate from the retry policy: a busy pool is a capacity
	// signal, not a processor bug.
	RequeueCount int `json:"requeue_count,omitempty"`
	// FirstAttemptAt is set on first dequeue and immutable thereafter;
	// the retry policy's total timeout is measured from it.
	FirstAttemptAt *time.Time `json:"first_attempt_time,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	// LastError records the most recent failure, for inspection of items
	// in the failures and system_errors collections.
	LastError string `json:"last_error,omitempty"`
}

// ProcessorRef returns the job's processor reference.
func (j *Job) ProcessorRef() Ref {
	return Ref{Name: j.ProcessorName, Module: j.ProcessorModule}
}

// Key returns the store key of the job's priority collection.
func (j *Job) Key() string {
	return QueueKey(j.QueueName, j.Priority)
}

// EnqueueResult is returned for every enqueued job.
type EnqueueResult struct {
	OperationID uuid.UUID `json:"operation_id"`
	QueueKey    string    `json:"queue_key"`
	// Deduplicated is true when an equivalent not-yet-terminal job was
	// found within the dedup window and no new item was stored.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// Status aggregates per-key counts and a metrics snapshot for
// administrative queries.
type Status struct {
	// Counts maps store keys (including delayed sets, failures and
	// system_errors) to their current item counts.
	Counts  map[string]int64 `json:"counts"`
	Metrics Metrics          `json:"metrics"`
}
