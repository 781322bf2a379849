// Package dispatcher runs the background loop that publishes due posts.
//
// A Dispatcher is an owned object with an explicit start/stop lifecycle, not
// a module-level singleton. On every tick it lists scheduled posts whose
// publication time has passed, claims each one with a compare-and-set status
// transition, takes the per-account publish lock, and invokes the platform's
// Publisher. Outcomes land back on the post and in the append-only attempt
// log.
//
// Failure handling follows the transient/permanent split from the publisher
// package: transient failures push the post back to scheduled with a short
// backoff until the retry ceiling is reached; permanent ones mark it failed
// immediately. An expired credential triggers one refresh-and-retry before
// classification. A failing post never stops the loop or the rest of the
// tick.
//
// On startup the dispatcher reverts posts orphaned in publishing by a crash
// back to scheduled; a duplicate publication across a crash is an accepted,
// documented residual risk since no attempt outcome was durably recorded.
package dispatcher
