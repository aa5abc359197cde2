// Package retry provides pure retry-policy computation for the job queue:
// per-attempt delay sequences and total-timeout exhaustion checks, with no
// I/O of any kind.
//
// A Policy is a serializable value embedded in each stored job, so the
// producer's retry decision travels with the item and is honored by
// whichever worker pops it.
//
// Three construction modes, all reducible to an explicit delay sequence:
//
//	retry.Fixed(time.Second, 5)                        // constant delay
//	retry.Exponential(2, time.Second, time.Minute, 5)  // 1s, 2s, 4s, 8s, 16s
//	retry.Custom([]time.Duration{0, time.Second})      // explicit list
//
// Exponential policies carry ±10% jitter by default, applied when the
// delay is read, never stored.
package retry
