// Package api exposes the queue over HTTP.
//
// Router builds a chi router with JSON endpoints for creating, reordering,
// retiming, promoting, cancelling and deleting posts, plus read-only views of
// the schedule and the slot calendar. Queue errors are translated to HTTP
// statuses: missing posts map to 404, illegal state transitions and busy
// accounts to 409, capacity and time validation failures to 422.
package api
