// Package lock provides the per-account publish locks that serialize
// outbound publishing calls.
//
// Platform APIs enforce per-account rate limits, and interleaving an OAuth
// token refresh with a concurrent publish on the same account is not safe.
// The dispatcher therefore takes a lock keyed by "platform/account" around
// every publish call; posts for different accounts proceed concurrently.
//
// Two implementations are provided: KeyedMutex for a single process and
// RedisLocker for deployments running more than one dispatcher.
package lock
