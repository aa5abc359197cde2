// Package breaker implements a three-state circuit breaker
// (closed/open/half-open) used to guard every call to the shared queue
// store. Consumers check Allow before a call and report the outcome with
// RecordSuccess or RecordFailure; while the circuit is open, calls are
// rejected immediately with no network attempt.
//
// Breaker state is intentionally process-local: sizing and recovery are
// per-process concerns, and the store itself remains the only shared
// mutable resource.
package breaker
