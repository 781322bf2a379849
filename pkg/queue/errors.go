package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrCalendarNil is returned when a nil slot calendar is provided.
	ErrCalendarNil = errors.New("slot calendar cannot be nil")

	// ErrPostNil is returned when a nil post is passed to an operation.
	ErrPostNil = errors.New("post cannot be nil")

	// ErrPostNotFound is returned when no post exists with the given id.
	ErrPostNotFound = errors.New("post not found")

	// ErrNoCapacity is returned when the allocator finds no eligible slot
	// within its horizon. The post stays queued; the caller may wait, add
	// slots, or pick an explicit time.
	ErrNoCapacity = errors.New("no publication slot available")

	// ErrCapacityExceeded is returned when an explicit time or edit would
	// push a slot-day over its daily limit.
	ErrCapacityExceeded = errors.New("slot-day capacity exceeded")

	// ErrInvalidTime is returned when an explicit timestamp is in the past
	// or matches no enabled slot.
	ErrInvalidTime = errors.New("timestamp is in the past or matches no enabled slot")

	// ErrConflict is returned when a mutation hits a post in an incompatible
	// state, e.g. cancelling a post that is already publishing.
	ErrConflict = errors.New("post is in a conflicting state")

	// ErrInvalidTransition is returned by storage when a compare-and-set
	// status update finds the post in an unexpected state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyContent is returned when a post has no content to publish.
	ErrEmptyContent = errors.New("post content cannot be empty")

	// ErrPlatformRequired is returned when a post names no target platform.
	ErrPlatformRequired = errors.New("post platform is required")
)
