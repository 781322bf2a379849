package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/postflow/pkg/slots"
)

// Queue implements the interactive scheduling operations over a Repository
// and a slot calendar. It is safe for concurrent use: allocation and capacity
// checks are serialized so two concurrent enqueues cannot oversubscribe the
// same slot-day.
type Queue struct {
	repo      Repository
	calendar  *slots.Calendar
	allocator *slots.Allocator
	logger    *slog.Logger
	now       func() time.Time

	// allocMu serializes every occupancy-read-then-schedule sequence.
	allocMu sync.Mutex
}

// New creates a Queue over the given repository and slot calendar.
func New(repo Repository, calendar *slots.Calendar, opts ...Option) (*Queue, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if calendar == nil {
		return nil, ErrCalendarNil
	}

	options := &queueOptions{
		horizonDays: slots.DefaultHorizonDays,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Queue{
		repo:      repo,
		calendar:  calendar,
		allocator: slots.NewAllocator(calendar, slots.WithHorizon(options.horizonDays)),
		logger:    options.logger,
		now:       options.now,
	}, nil
}

// Calendar exposes the slot calendar for configuration surfaces.
func (q *Queue) Calendar() *slots.Calendar {
	return q.calendar
}

// occupancy adapts the repository occupancy count to the allocator contract.
func (q *Queue) occupancy(ctx context.Context) slots.OccupancyFunc {
	return func(platform string, at time.Time) (int, error) {
		return q.repo.CountAt(ctx, platform, at)
	}
}

// Enqueue stores the post and assigns it a publication timestamp.
//
// With WithExplicitTime the given instant must lie in the future, match an
// enabled slot, and leave the slot-day under its daily limit; otherwise
// ErrInvalidTime or ErrCapacityExceeded is returned and the post stays
// queued. Without it, the allocator picks the next free slot-day; when the
// horizon is exhausted the post likewise stays queued and ErrNoCapacity is
// returned. A failed allocation never drops the post.
func (q *Queue) Enqueue(ctx context.Context, post *Post, opts ...EnqueueOption) error {
	if post == nil {
		return ErrPostNil
	}
	if err := post.Validate(); err != nil {
		return err
	}

	options := &enqueueOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := q.now()
	post.Status = StatusQueued
	post.ScheduledAt = nil
	post.CreatedAt = now
	post.UpdatedAt = now

	rank, err := q.repo.NextQueueRank(ctx)
	if err != nil {
		return fmt.Errorf("assign queue rank: %w", err)
	}
	post.QueueRank = rank

	if err := q.repo.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	q.allocMu.Lock()
	defer q.allocMu.Unlock()

	var at time.Time
	if options.explicitTime != nil {
		at = *options.explicitTime
		if err := q.checkExplicit(post.Platform, at); err != nil {
			return err
		}
		if err := q.repo.SchedulePost(ctx, post.ID, at, q.calendar.CapacityAt(post.Platform, at)); err != nil {
			if errors.Is(err, ErrCapacityExceeded) {
				return ErrCapacityExceeded
			}
			return fmt.Errorf("schedule post: %w", err)
		}
	} else {
		// A scheduler in another process can fill the chosen instant between
		// the occupancy read and the capped write, so re-allocate on a
		// capacity miss. The horizon bounds the loop.
		for {
			at, err = q.allocator.NextSlot(post.Platform, now, q.occupancy(ctx))
			if errors.Is(err, slots.ErrNoCapacity) {
				q.logger.Warn("no slot capacity, post left queued",
					slog.String("post_id", post.ID.String()),
					slog.String("platform", post.Platform))
				return ErrNoCapacity
			}
			if err != nil {
				return fmt.Errorf("allocate slot: %w", err)
			}

			err = q.repo.SchedulePost(ctx, post.ID, at, q.calendar.CapacityAt(post.Platform, at))
			if errors.Is(err, ErrCapacityExceeded) {
				continue
			}
			if err != nil {
				return fmt.Errorf("schedule post: %w", err)
			}
			break
		}
	}
	post.Status = StatusScheduled
	post.ScheduledAt = &at

	q.logger.Info("post scheduled",
		slog.String("post_id", post.ID.String()),
		slog.String("platform", post.Platform),
		slog.Time("scheduled_at", at))

	return nil
}

// checkExplicit validates an explicit publication instant: it must be in the
// future and land exactly on an enabled slot. Capacity is not checked here;
// SchedulePost enforces it atomically against the store.
func (q *Queue) checkExplicit(platform string, at time.Time) error {
	if !at.After(q.now()) {
		return ErrInvalidTime
	}
	if len(q.calendar.SlotsAt(platform, at)) == 0 {
		return ErrInvalidTime
	}
	return nil
}

// Reorder reassigns queue ranks to match the given id order. Only posts still
// pending allocation (draft or queued) are touched; already-scheduled posts
// keep their timestamps, so capacity counts stay stable once assigned.
func (q *Queue) Reorder(ctx context.Context, ids []uuid.UUID) error {
	ranks := make(map[uuid.UUID]int, len(ids))
	next := 0
	for _, id := range ids {
		post, err := q.repo.GetPost(ctx, id)
		if err != nil {
			return err
		}
		if post.Status != StatusDraft && post.Status != StatusQueued {
			continue
		}
		ranks[id] = next
		next++
	}
	if len(ranks) == 0 {
		return nil
	}
	return q.repo.SetQueueRanks(ctx, ranks)
}

// EditTime moves a queued or scheduled post to a new explicit instant,
// re-validating capacity at the target slot-day (excluding the post's own
// prior occupancy) before committing.
func (q *Queue) EditTime(ctx context.Context, id uuid.UUID, newTime time.Time) error {
	post, err := q.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != StatusQueued && post.Status != StatusScheduled {
		return ErrConflict
	}

	q.allocMu.Lock()
	defer q.allocMu.Unlock()

	if err := q.checkExplicit(post.Platform, newTime); err != nil {
		return err
	}
	if err := q.repo.SchedulePost(ctx, id, newTime, q.calendar.CapacityAt(post.Platform, newTime)); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Cancel moves a draft, queued, or scheduled post to cancelled, freeing its
// slot-day occupancy immediately. Posts already publishing are rejected with
// ErrConflict; the in-flight attempt must resolve first.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := q.repo.CancelPost(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Delete removes a post entirely. The same state restrictions as Cancel apply.
func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	if err := q.repo.DeletePost(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Get returns a single post.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*Post, error) {
	return q.repo.GetPost(ctx, id)
}

// List returns posts matching the filter.
func (q *Queue) List(ctx context.Context, filter Filter) ([]Post, error) {
	return q.repo.ListPosts(ctx, filter)
}

// Attempts returns the append-only publish attempt log of a post.
func (q *Queue) Attempts(ctx context.Context, postID uuid.UUID) ([]PublishAttempt, error) {
	return q.repo.ListAttempts(ctx, postID)
}

// Schedule returns the occupancy view for a platform between two instants,
// grouped by publication timestamp, for UI rendering.
func (q *Queue) Schedule(ctx context.Context, platform string, from, to time.Time) ([]ScheduleEntry, error) {
	posts, err := q.repo.ListScheduledBetween(ctx, platform, from, to)
	if err != nil {
		return nil, err
	}

	var entries []ScheduleEntry
	for _, post := range posts {
		if post.ScheduledAt == nil {
			continue
		}
		at := *post.ScheduledAt
		if len(entries) > 0 && entries[len(entries)-1].At.Equal(at) {
			entries[len(entries)-1].Posts = append(entries[len(entries)-1].Posts, post)
			continue
		}
		entries = append(entries, ScheduleEntry{At: at, Posts: []Post{post}})
	}
	return entries, nil
}

// Redistribute re-runs the allocator for posts displaced by an out-of-order
// publish: every still-scheduled post whose timestamp fell strictly between
// the promoted post's original slot and the promotion instant is reassigned
// with the current time as the lower bound, earliest original assignment
// first, so relative order survives and no slot-day cap is exceeded. Posts
// the allocator cannot place are returned to queued, never dropped. Returns
// the number of posts moved.
func (q *Queue) Redistribute(ctx context.Context, platform string, windowStart, windowEnd time.Time) (int, error) {
	if windowEnd.Before(windowStart) {
		windowStart, windowEnd = windowEnd, windowStart
	}
	displaced, err := q.repo.ListScheduledBetween(ctx, platform, windowStart, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("list displaced posts: %w", err)
	}
	now := q.now()

	q.allocMu.Lock()
	defer q.allocMu.Unlock()

	moved := 0
	for _, post := range displaced {
		// Release the post's own assignment first so its occupancy does not
		// count against itself during re-allocation. If the dispatcher
		// claimed the post in the meantime, leave it alone.
		if err := q.repo.ReturnToQueue(ctx, post.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrPostNotFound) {
				continue
			}
			return moved, fmt.Errorf("release post %s: %w", post.ID, err)
		}

		at, err := q.allocator.NextSlot(platform, now, q.occupancy(ctx))
		if errors.Is(err, slots.ErrNoCapacity) {
			q.logger.Warn("no capacity during redistribution, post left queued",
				slog.String("post_id", post.ID.String()),
				slog.String("platform", platform))
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("allocate slot for %s: %w", post.ID, err)
		}

		err = q.repo.SchedulePost(ctx, post.ID, at, q.calendar.CapacityAt(platform, at))
		if errors.Is(err, ErrCapacityExceeded) {
			// Lost the instant to a scheduler in another process; the post
			// stays queued for the next pass.
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("reschedule post %s: %w", post.ID, err)
		}
		moved++
	}
	return moved, nil
}
