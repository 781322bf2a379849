package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Friday 2026-08-28 08:00 UTC.
var friday8 = time.Date(2026, time.August, 28, 8, 0, 0, 0, time.UTC)

func workdayCalendar(t *testing.T, limit int) *slots.Calendar {
	t.Helper()
	cal := slots.NewCalendar()
	require.NoError(t, cal.Upsert(slots.TimeSlot{
		Platform:   "linkedin",
		At:         slots.MustParseTimeOfDay("09:00"),
		Weekdays:   slots.Workdays(),
		DailyLimit: limit,
		Enabled:    true,
	}))
	return cal
}

func newQueue(t *testing.T, cal *slots.Calendar, clk *fakeClock) (*queue.Queue, *queue.MemoryStorage) {
	t.Helper()
	repo := queue.NewMemoryStorage()
	q, err := queue.New(repo, cal, queue.WithClock(clk.Now))
	require.NoError(t, err)
	return q, repo
}

func post(content string) *queue.Post {
	return &queue.Post{Platform: "linkedin", Account: "acct-1", Content: content}
}

func TestEnqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("three posts walk the workweek", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		want := []time.Time{
			time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC), // Friday
			time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC), // Monday
			time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC), // Tuesday
		}
		for i, expected := range want {
			p := post("post")
			require.NoError(t, q.Enqueue(ctx, p), "post %d", i)
			require.Equal(t, queue.StatusScheduled, p.Status)
			require.NotNil(t, p.ScheduledAt)
			assert.True(t, p.ScheduledAt.Equal(expected), "post %d: got %s want %s", i, p.ScheduledAt, expected)
		}
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		assert.ErrorIs(t, q.Enqueue(ctx, nil), queue.ErrPostNil)
		assert.ErrorIs(t, q.Enqueue(ctx, &queue.Post{Platform: "linkedin"}), queue.ErrEmptyContent)
		assert.ErrorIs(t, q.Enqueue(ctx, &queue.Post{Content: "x"}), queue.ErrPlatformRequired)
	})

	t.Run("no capacity leaves post queued", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, slots.NewCalendar(), clk)

		p := post("stranded")
		require.ErrorIs(t, q.Enqueue(ctx, p), queue.ErrNoCapacity)

		got, err := q.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusQueued, got.Status)
		assert.Nil(t, got.ScheduledAt)
	})

	t.Run("explicit time", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		fridaySlot := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)

		p := post("explicit")
		require.NoError(t, q.Enqueue(ctx, p, queue.WithExplicitTime(fridaySlot)))
		require.NotNil(t, p.ScheduledAt)
		assert.True(t, p.ScheduledAt.Equal(fridaySlot))

		// Past instant.
		err := q.Enqueue(ctx, post("too late"), queue.WithExplicitTime(friday8.Add(-time.Hour)))
		assert.ErrorIs(t, err, queue.ErrInvalidTime)

		// No slot at that time of day.
		err = q.Enqueue(ctx, post("off slot"), queue.WithExplicitTime(fridaySlot.Add(30*time.Minute)))
		assert.ErrorIs(t, err, queue.ErrInvalidTime)

		// Sub-minute offset from the slot instant. Occupancy is counted per
		// exact instant, so letting this through would stack a second post
		// onto the already-full slot-day.
		err = q.Enqueue(ctx, post("skewed"), queue.WithExplicitTime(fridaySlot.Add(30*time.Second)))
		assert.ErrorIs(t, err, queue.ErrInvalidTime)

		// Slot-day already at its limit.
		over := post("over capacity")
		err = q.Enqueue(ctx, over, queue.WithExplicitTime(fridaySlot))
		assert.ErrorIs(t, err, queue.ErrCapacityExceeded)

		got, getErr := q.Get(ctx, over.ID)
		require.NoError(t, getErr)
		assert.Equal(t, queue.StatusQueued, got.Status)
	})
}

// A scheduler in another process bypasses this process's pre-checks, so the
// store itself must refuse a write that would oversubscribe an instant.
func TestScheduleCapacityAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, repo := newQueue(t, workdayCalendar(t, 1), clk)

	fridaySlot := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)

	p1 := post("first")
	require.NoError(t, q.Enqueue(ctx, p1, queue.WithExplicitTime(fridaySlot)))

	p2 := post("second")
	p2.ID = uuid.New()
	p2.Status = queue.StatusQueued
	require.NoError(t, repo.CreatePost(ctx, p2))

	err := repo.SchedulePost(ctx, p2.ID, fridaySlot, 1)
	assert.ErrorIs(t, err, queue.ErrCapacityExceeded)

	got, err := repo.GetPost(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, got.Status)

	// A post's own occupancy never counts against itself.
	require.NoError(t, repo.SchedulePost(ctx, p1.ID, fridaySlot, 1))
}

func TestCancelFreesOccupancy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, repo := newQueue(t, workdayCalendar(t, 1), clk)

	fridaySlot := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)

	p1 := post("first")
	require.NoError(t, q.Enqueue(ctx, p1))
	require.True(t, p1.ScheduledAt.Equal(fridaySlot))

	count, err := repo.CountAt(ctx, "linkedin", fridaySlot)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, q.Cancel(ctx, p1.ID))

	count, err = repo.CountAt(ctx, "linkedin", fridaySlot)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The freed slot-day is offered again.
	p2 := post("second")
	require.NoError(t, q.Enqueue(ctx, p2))
	assert.True(t, p2.ScheduledAt.Equal(fridaySlot))
}

func TestCancelAndDeleteConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, repo := newQueue(t, workdayCalendar(t, 1), clk)

	p := post("in flight")
	require.NoError(t, q.Enqueue(ctx, p))

	_, err := repo.ClaimPost(ctx, p.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Cancel(ctx, p.ID), queue.ErrConflict)
	assert.ErrorIs(t, q.Delete(ctx, p.ID), queue.ErrConflict)

	assert.ErrorIs(t, q.Cancel(ctx, uuid.New()), queue.ErrPostNotFound)
}

func TestReorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, _ := newQueue(t, workdayCalendar(t, 1), clk)

	scheduled := post("scheduled")
	require.NoError(t, q.Enqueue(ctx, scheduled))

	// Posts stay queued when the calendar offers no slots.
	emptyQ, _ := newQueue(t, slots.NewCalendar(), clk)
	a, b := post("a"), post("b")
	require.ErrorIs(t, emptyQ.Enqueue(ctx, a), queue.ErrNoCapacity)
	require.ErrorIs(t, emptyQ.Enqueue(ctx, b), queue.ErrNoCapacity)

	require.NoError(t, emptyQ.Reorder(ctx, []uuid.UUID{b.ID, a.ID}))

	gotB, err := emptyQ.Get(ctx, b.ID)
	require.NoError(t, err)
	gotA, err := emptyQ.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Less(t, gotB.QueueRank, gotA.QueueRank)

	// Scheduled posts keep rank and timestamp.
	before, err := q.Get(ctx, scheduled.ID)
	require.NoError(t, err)
	require.NoError(t, q.Reorder(ctx, []uuid.UUID{scheduled.ID}))
	after, err := q.Get(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, before.QueueRank, after.QueueRank)
	assert.True(t, before.ScheduledAt.Equal(*after.ScheduledAt))
}

func TestEditTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fridaySlot := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)
	mondaySlot := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	t.Run("move to free slot-day", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		p := post("movable")
		require.NoError(t, q.Enqueue(ctx, p))
		require.True(t, p.ScheduledAt.Equal(fridaySlot))

		require.NoError(t, q.EditTime(ctx, p.ID, mondaySlot))
		got, err := q.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.ScheduledAt.Equal(mondaySlot))
	})

	t.Run("own occupancy excluded", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		p := post("stay put")
		require.NoError(t, q.Enqueue(ctx, p))

		// Re-committing the same instant must not collide with itself.
		assert.NoError(t, q.EditTime(ctx, p.ID, fridaySlot))
	})

	t.Run("target slot-day full", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, _ := newQueue(t, workdayCalendar(t, 1), clk)

		p1, p2 := post("first"), post("second")
		require.NoError(t, q.Enqueue(ctx, p1)) // Friday
		require.NoError(t, q.Enqueue(ctx, p2)) // Monday

		assert.ErrorIs(t, q.EditTime(ctx, p2.ID, fridaySlot), queue.ErrCapacityExceeded)
	})

	t.Run("wrong state", func(t *testing.T) {
		t.Parallel()
		clk := &fakeClock{t: friday8}
		q, repo := newQueue(t, workdayCalendar(t, 1), clk)

		p := post("claimed")
		require.NoError(t, q.Enqueue(ctx, p))
		_, err := repo.ClaimPost(ctx, p.ID)
		require.NoError(t, err)

		assert.ErrorIs(t, q.EditTime(ctx, p.ID, mondaySlot), queue.ErrConflict)
	})
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cal := workdayCalendar(t, 2)
	clk := &fakeClock{t: friday8}
	q, _ := newQueue(t, cal, clk)

	// Two posts share Friday 09:00, one lands on Monday.
	for range 3 {
		require.NoError(t, q.Enqueue(ctx, post("p")))
	}

	entries, err := q.Schedule(ctx, "linkedin", friday8, friday8.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Posts, 2)
	assert.Len(t, entries[1].Posts, 1)
	assert.True(t, entries[0].At.Before(entries[1].At))
}

func TestRedistribute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, repo := newQueue(t, workdayCalendar(t, 1), clk)

	fridaySlot := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)
	mondaySlot := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	tuesdaySlot := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

	p1, p2, p3 := post("a"), post("b"), post("c")
	require.NoError(t, q.Enqueue(ctx, p1)) // Friday
	require.NoError(t, q.Enqueue(ctx, p2)) // Monday
	require.NoError(t, q.Enqueue(ctx, p3)) // Tuesday

	// p2 is promoted and published immediately, vacating Monday.
	_, err := repo.ClaimPost(ctx, p2.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkPosted(ctx, p2.ID, "remote-1"))

	promotedAt := friday8.Add(30 * time.Minute)
	clk.Set(promotedAt)

	moved, err := q.Redistribute(ctx, "linkedin", promotedAt, mondaySlot)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// p1 keeps the earliest free slot-day; p3 is outside the window and
	// untouched. Relative order is preserved and no cap is exceeded.
	got1, err := q.Get(ctx, p1.ID)
	require.NoError(t, err)
	require.NotNil(t, got1.ScheduledAt)
	assert.True(t, got1.ScheduledAt.Equal(fridaySlot))

	got3, err := q.Get(ctx, p3.ID)
	require.NoError(t, err)
	require.NotNil(t, got3.ScheduledAt)
	assert.True(t, got3.ScheduledAt.Equal(tuesdaySlot))

	count, err := repo.CountAt(ctx, "linkedin", fridaySlot)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{t: friday8}
	q, repo := newQueue(t, workdayCalendar(t, 1), clk)

	p := post("with history")
	require.NoError(t, q.Enqueue(ctx, p))

	require.NoError(t, repo.RecordAttempt(ctx, &queue.PublishAttempt{
		ID:         uuid.New(),
		PostID:     p.ID,
		StartedAt:  friday8,
		FinishedAt: friday8.Add(time.Second),
		Outcome:    queue.AttemptFailure,
		ErrorClass: "rate_limited",
		Error:      "429",
	}))

	attempts, err := q.Attempts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, queue.AttemptFailure, attempts[0].Outcome)
}
