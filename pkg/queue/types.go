package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a post.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusQueued     Status = "queued"
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPosted     Status = "posted"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the legality table for status changes. Interactive callers
// own everything up to scheduled; only the dispatcher moves posts into
// publishing, posted, and failed.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusQueued, StatusScheduled, StatusCancelled},
	StatusQueued:     {StatusScheduled, StatusDraft, StatusCancelled},
	StatusScheduled:  {StatusScheduled, StatusPublishing, StatusQueued, StatusCancelled},
	StatusPublishing: {StatusPosted, StatusFailed, StatusScheduled},
}

// CanTransition reports whether moving from s to the target state is legal.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is a final publish outcome or an
// explicit end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusPosted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Occupies reports whether a post in this status counts against slot-day
// capacity.
func (s Status) Occupies() bool {
	return s == StatusScheduled || s == StatusPublishing
}

// Post is the unit of scheduling and publication.
type Post struct {
	ID           uuid.UUID  `json:"id"`
	Platform     string     `json:"platform"`
	Account      string     `json:"account"`
	Content      string     `json:"content"`
	MediaRefs    []string   `json:"media_refs,omitempty"`
	Status       Status     `json:"status"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	QueueRank    int        `json:"queue_rank"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the fields a post needs before it can enter the queue.
func (p *Post) Validate() error {
	if p.Platform == "" {
		return ErrPlatformRequired
	}
	if p.Content == "" && len(p.MediaRefs) == 0 {
		return ErrEmptyContent
	}
	return nil
}

// AttemptOutcome is the result class of a publish attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// PublishAttempt is one append-only record of a publish call. Attempts are
// never mutated after being written; they drive retry accounting and keep
// failures queryable.
type PublishAttempt struct {
	ID         uuid.UUID      `json:"id"`
	PostID     uuid.UUID      `json:"post_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    AttemptOutcome `json:"outcome"`
	ErrorClass string         `json:"error_class,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   Status
	Platform string
}

// ScheduleEntry is one row of the read-only schedule view.
type ScheduleEntry struct {
	At    time.Time `json:"at"`
	Posts []Post    `json:"posts"`
}
