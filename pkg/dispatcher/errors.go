package dispatcher

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrRegistryNil is returned when a nil publisher registry is provided.
	ErrRegistryNil = errors.New("publisher registry cannot be nil")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("dispatcher already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("dispatcher not started")

	// ErrAccountBusy is returned by PublishNow when another publish call
	// already holds the account's lock. The caller retries later.
	ErrAccountBusy = errors.New("account has a publish call in flight")

	// ErrNotPromotable is returned by PublishNow when the post is not in a
	// state that can be promoted to immediate publication.
	ErrNotPromotable = errors.New("post cannot be promoted to immediate publication")
)
