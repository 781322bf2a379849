package queue

import (
	"log/slog"
	"time"
)

type queueOptions struct {
	horizonDays int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Queue.
type Option func(*queueOptions)

// WithHorizon overrides the allocator search horizon in days.
func WithHorizon(days int) Option {
	return func(o *queueOptions) {
		if days > 0 {
			o.horizonDays = days
		}
	}
}

// WithLogger sets the logger used for scheduling decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(o *queueOptions) {
		if now != nil {
			o.now = now
		}
	}
}

type enqueueOptions struct {
	explicitTime *time.Time
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

// WithExplicitTime pins the post to a caller-chosen instant instead of
// letting the allocator pick one. The instant must match an enabled slot.
func WithExplicitTime(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.explicitTime = &at
	}
}
