package publisher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class partitions publish failures by how the dispatcher should react.
type Class string

const (
	// ClassRateLimited means the platform refused the call for pacing
	// reasons; retry after backoff.
	ClassRateLimited Class = "rate_limited"

	// ClassAuthExpired means the credential is no longer valid; refresh it
	// and retry once before treating the attempt as failed.
	ClassAuthExpired Class = "auth_expired"

	// ClassRejected means the platform rejected the content itself; no
	// retry can succeed unmodified.
	ClassRejected Class = "rejected"

	// ClassUnreachable covers network failures and timeouts; retry after
	// backoff.
	ClassUnreachable Class = "unreachable"
)

// Transient reports whether an attempt with this class may succeed on retry.
func (c Class) Transient() bool {
	return c == ClassRateLimited || c == ClassUnreachable
}

// Permanent reports whether retrying is pointless.
func (c Class) Permanent() bool {
	return c == ClassRejected
}

// Error is a classified publish failure.
type Error struct {
	Class      Class
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("publish failed (%s): %s", e.Class, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("publish failed (%s): %v", e.Class, e.Err)
	}
	return fmt.Sprintf("publish failed (%s)", e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified publish error.
func NewError(class Class, statusCode int, message string, err error) *Error {
	return &Error{Class: class, StatusCode: statusCode, Message: message, Err: err}
}

// ErrNoPublisher is returned by the registry when a post names a platform
// without a registered implementation.
var ErrNoPublisher = errors.New("no publisher registered for platform")

// Classify maps an arbitrary error into a Class. Already-classified errors
// keep their class; context deadlines and network timeouts are treated as
// unreachable (transient); anything unknown is likewise assumed transient so
// a flaky platform never turns into a silent permanent failure.
func Classify(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassUnreachable
	}
	return ClassUnreachable
}
