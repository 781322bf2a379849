package dispatcher

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/postflow/pkg/lock"
)

type options struct {
	tickInterval   time.Duration
	retryCeiling   int
	retryBackoff   time.Duration
	publishTimeout time.Duration
	locker         lock.Locker
	redistributor  Redistributor
	logger         *slog.Logger
	now            func() time.Time
}

func defaultOptions() *options {
	return &options{
		tickInterval:   time.Minute,
		retryCeiling:   3,
		retryBackoff:   5 * time.Minute,
		publishTimeout: time.Minute,
		logger:         slog.Default(),
		now:            time.Now,
	}
}

// Option configures a Dispatcher.
type Option func(*options)

// WithTickInterval sets how often the dispatcher looks for due posts.
func WithTickInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.tickInterval = interval
		}
	}
}

// WithRetryCeiling sets the maximum number of publish attempts per post.
func WithRetryCeiling(ceiling int) Option {
	return func(o *options) {
		if ceiling > 0 {
			o.retryCeiling = ceiling
		}
	}
}

// WithRetryBackoff sets how far a transiently failed post is pushed forward
// before the next attempt.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(o *options) {
		if backoff > 0 {
			o.retryBackoff = backoff
		}
	}
}

// WithPublishTimeout bounds a single publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.publishTimeout = timeout
		}
	}
}

// WithLocker overrides the per-account publish lock implementation.
// Defaults to an in-process lock.KeyedMutex.
func WithLocker(locker lock.Locker) Option {
	return func(o *options) {
		if locker != nil {
			o.locker = locker
		}
	}
}

// WithRedistributor wires the queue's redistribution hook, triggered after a
// PublishNow promotion resolves.
func WithRedistributor(r Redistributor) Option {
	return func(o *options) {
		o.redistributor = r
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
