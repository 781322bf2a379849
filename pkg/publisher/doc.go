// Package publisher defines the capability boundary between the queue engine
// and external publishing platforms.
//
// Each platform (Facebook, LinkedIn, Threads, ...) implements the Publisher
// interface; a Registry maps a post's platform field to the implementation,
// keeping the queue and dispatcher platform-agnostic.
//
// Publish failures are classified into a small taxonomy (Error with a Class)
// that drives the dispatcher's retry decisions: RateLimited and Unreachable
// are transient and retried with backoff, Rejected is permanent, and
// AuthExpired triggers a single credential refresh before reclassification.
// Classify maps arbitrary errors — including context deadlines and network
// timeouts — into the taxonomy so the dispatcher never has to peek at
// platform internals.
package publisher
