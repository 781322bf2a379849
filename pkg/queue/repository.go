package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for posts, slot occupancy, and the
// publish attempt log. Status-changing methods are compare-and-set: they
// succeed only when the stored status matches the expected source state and
// return ErrInvalidTransition otherwise, which is how the queue and the
// dispatcher avoid double-claiming a post.
type Repository interface {
	// CreatePost stores a new post.
	CreatePost(ctx context.Context, post *Post) error

	// GetPost returns the post with the given id or ErrPostNotFound.
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)

	// DeletePost removes a post. Only legal in draft, queued, or scheduled;
	// otherwise ErrInvalidTransition.
	DeletePost(ctx context.Context, id uuid.UUID) error

	// ListPosts returns posts matching the filter, ordered by queue rank
	// then creation time.
	ListPosts(ctx context.Context, filter Filter) ([]Post, error)

	// SchedulePost assigns a publication timestamp, moving the post from
	// queued (or an earlier scheduled assignment) into scheduled. The
	// occupancy check against capacity and the status write happen
	// atomically, so concurrent schedulers in other processes cannot
	// oversubscribe the instant; a full instant yields
	// ErrCapacityExceeded. The post's own prior occupancy at the same
	// instant never counts against it.
	SchedulePost(ctx context.Context, id uuid.UUID, at time.Time, capacity int) error

	// ReturnToQueue clears the assignment of a scheduled post, moving it
	// back to queued. Used when redistribution finds no capacity.
	ReturnToQueue(ctx context.Context, id uuid.UUID) error

	// CancelPost moves a draft, queued, or scheduled post to cancelled.
	CancelPost(ctx context.Context, id uuid.UUID) error

	// SetQueueRanks rewrites the ranks of the given posts in one shot.
	SetQueueRanks(ctx context.Context, ranks map[uuid.UUID]int) error

	// NextQueueRank returns a rank strictly greater than any existing one.
	NextQueueRank(ctx context.Context) (int, error)

	// CountAt returns the number of posts occupying the exact publication
	// instant (status scheduled or publishing).
	CountAt(ctx context.Context, platform string, at time.Time) (int, error)

	// ListScheduledBetween returns scheduled posts with from < scheduled_at
	// and scheduled_at < to, ordered by scheduled_at then queue rank.
	ListScheduledBetween(ctx context.Context, platform string, from, to time.Time) ([]Post, error)

	// ListDue returns scheduled posts with scheduled_at <= now, ordered by
	// scheduled_at ascending, ties broken by id.
	ListDue(ctx context.Context, now time.Time) ([]Post, error)

	// ClaimPost moves a scheduled post to publishing and increments its
	// attempt count, returning the updated copy. ErrInvalidTransition when
	// the post is no longer scheduled.
	ClaimPost(ctx context.Context, id uuid.UUID) (*Post, error)

	// MarkPosted finishes a publishing post with its remote id.
	MarkPosted(ctx context.Context, id uuid.UUID, remoteID string) error

	// MarkFailed finishes a publishing post as permanently failed.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ReschedulePost returns a publishing post to scheduled at a later
	// instant, recording the transient error that caused the retry.
	ReschedulePost(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error

	// ReleaseOrphaned reverts every publishing post to scheduled. Called on
	// startup to self-heal after a crash left attempts unresolved.
	ReleaseOrphaned(ctx context.Context) (int, error)

	// RecordAttempt appends a publish attempt to the log.
	RecordAttempt(ctx context.Context, attempt *PublishAttempt) error

	// ListAttempts returns a post's attempts ordered by start time.
	ListAttempts(ctx context.Context, postID uuid.UUID) ([]PublishAttempt, error)
}
