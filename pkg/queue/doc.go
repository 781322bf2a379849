// Package queue turns an unordered backlog of drafted social-media posts into
// a time-ordered, capacity-limited publication schedule.
//
// The package is organised around three pieces:
//
//   - Post        — the scheduling unit and its lifecycle states
//   - Repository  — the persistence contract (compare-and-set transitions,
//     occupancy counts, append-only attempt log)
//   - Queue       — the service implementing enqueue, reorder, time edits,
//     cancellation, and redistribution against a slots.Allocator
//
// The Queue owns all interactive state transitions; the dispatcher package
// owns the publishing ones. Both talk to the same Repository, whose
// compare-and-set methods keep the two sides from racing on the same post.
//
// # Lifecycle
//
//	draft → queued → scheduled → publishing → posted | failed
//	                     ↑____________|
//	                    (retry with backoff)
//
// draft and cancelled are reachable only by explicit caller action; posted
// and failed are terminal outcomes of a publish attempt.
//
// # Capacity
//
// Occupancy — the number of scheduled or publishing posts assigned to a
// slot-day — is derived from storage, never stored. Allocation and capacity
// checks are serialized inside the Queue so concurrent enqueues cannot
// oversubscribe a slot-day.
package queue
