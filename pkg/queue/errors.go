package queue

import "errors"

// Common errors
var (
	// ErrStoreNil is returned when a nil store is provided
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrRegistryNil is returned when a nil processor registry is provided
	ErrRegistryNil = errors.New("registry cannot be nil")

	// ErrEntityNil is returned when attempting to enqueue a nil entity
	ErrEntityNil = errors.New("entity cannot be nil")

	// ErrSerializeEntity is returned when entity serialization fails
	ErrSerializeEntity = errors.New("failed to serialize entity")

	// ErrDeserializeJob is returned when a stored item cannot be decoded;
	// this is a system error, never retried
	ErrDeserializeJob = errors.New("failed to deserialize stored job")

	// ErrInvalidPriority is returned when priority is not high, normal or low
	ErrInvalidPriority = errors.New("priority must be one of high, normal, low")

	// ErrProcessorRefEmpty is returned when a job names no processor
	ErrProcessorRefEmpty = errors.New("processor reference cannot be empty")

	// ErrNoItemsToEnqueue is returned when batch enqueue is called with empty items
	ErrNoItemsToEnqueue = errors.New("no items to enqueue")

	// ErrEmptyQueue is returned by a store pop when all polled keys are empty
	ErrEmptyQueue = errors.New("no items in polled queues")

	// ErrCircuitOpen is returned by the store adapter while its circuit
	// breaker rejects calls; no network attempt was made
	ErrCircuitOpen = errors.New("store circuit breaker is open")

	// ErrPoolSaturated is returned when an executor slot could not be
	// acquired within the admission timeout; a capacity signal, not a
	// processor failure
	ErrPoolSaturated = errors.New("executor pool saturated")

	// ErrProcessorNotFound is returned when no processor is registered for
	// a job's reference; this is a system error, never retried
	ErrProcessorNotFound = errors.New("no processor registered for reference")

	// ErrCallbackNotFound is returned when a callback reference cannot be resolved
	ErrCallbackNotFound = errors.New("no callback registered for reference")

	// ErrNoProcessors is returned when a worker starts with an empty registry
	ErrNoProcessors = errors.New("no processors registered")

	// ErrWorkTimeout is returned when a non-blocking processor exceeds its
	// effective timeout; treated identically to an application failure
	ErrWorkTimeout = errors.New("processor exceeded effective timeout")

	// ErrTotalBudgetExceeded marks a job dead-lettered because its total
	// wall-clock retry budget ran out
	ErrTotalBudgetExceeded = errors.New("job exceeded total retry time budget")
)
