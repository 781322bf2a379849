package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Repository in memory for tests and local
// development. All status transitions go through the same compare-and-set
// path a durable implementation would use.
type MemoryStorage struct {
	mu       sync.RWMutex
	posts    map[uuid.UUID]*Post
	attempts map[uuid.UUID][]PublishAttempt
	maxRank  int
}

// NewMemoryStorage creates an empty in-memory repository.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		posts:    make(map[uuid.UUID]*Post),
		attempts: make(map[uuid.UUID][]PublishAttempt),
	}
}

// CreatePost implements Repository.
func (ms *MemoryStorage) CreatePost(ctx context.Context, post *Post) error {
	if post == nil {
		return ErrPostNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.posts[post.ID]; exists {
		return fmt.Errorf("post %s already exists", post.ID)
	}

	// Clone to prevent external mutation of stored state.
	clone := *post
	ms.posts[post.ID] = &clone
	if post.QueueRank > ms.maxRank {
		ms.maxRank = post.QueueRank
	}
	return nil
}

// GetPost implements Repository.
func (ms *MemoryStorage) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	post, exists := ms.posts[id]
	if !exists {
		return nil, ErrPostNotFound
	}
	clone := *post
	return &clone, nil
}

// DeletePost implements Repository.
func (ms *MemoryStorage) DeletePost(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	post, exists := ms.posts[id]
	if !exists {
		return ErrPostNotFound
	}
	switch post.Status {
	case StatusDraft, StatusQueued, StatusScheduled:
		delete(ms.posts, id)
		delete(ms.attempts, id)
		return nil
	}
	return fmt.Errorf("%w: cannot delete post in status %s", ErrInvalidTransition, post.Status)
}

// ListPosts implements Repository.
func (ms *MemoryStorage) ListPosts(ctx context.Context, filter Filter) ([]Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Post
	for _, post := range ms.posts {
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		if filter.Platform != "" && post.Platform != filter.Platform {
			continue
		}
		out = append(out, *post)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueRank != out[j].QueueRank {
			return out[i].QueueRank < out[j].QueueRank
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// transition applies a compare-and-set status change under the lock.
func (ms *MemoryStorage) transition(id uuid.UUID, from []Status, to Status, mutate func(*Post)) error {
	post, exists := ms.posts[id]
	if !exists {
		return ErrPostNotFound
	}

	allowed := false
	for _, s := range from {
		if post.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, post.Status, to)
	}

	post.Status = to
	post.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(post)
	}
	return nil
}

// SchedulePost implements Repository. The occupancy check and the status
// write share the storage lock, so concurrent schedulers cannot oversubscribe
// an instant.
func (ms *MemoryStorage) SchedulePost(ctx context.Context, id uuid.UUID, at time.Time, capacity int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	post, exists := ms.posts[id]
	if !exists {
		return ErrPostNotFound
	}

	count := 0
	for _, p := range ms.posts {
		if p.ID == id || p.Platform != post.Platform || p.ScheduledAt == nil {
			continue
		}
		if (p.Status == StatusScheduled || p.Status == StatusPublishing) && p.ScheduledAt.Equal(at) {
			count++
		}
	}
	if count >= capacity {
		return ErrCapacityExceeded
	}

	return ms.transition(id, []Status{StatusDraft, StatusQueued, StatusScheduled}, StatusScheduled, func(p *Post) {
		t := at
		p.ScheduledAt = &t
	})
}

// ReturnToQueue implements Repository.
func (ms *MemoryStorage) ReturnToQueue(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.transition(id, []Status{StatusScheduled}, StatusQueued, func(p *Post) {
		p.ScheduledAt = nil
	})
}

// CancelPost implements Repository.
func (ms *MemoryStorage) CancelPost(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.transition(id, []Status{StatusDraft, StatusQueued, StatusScheduled}, StatusCancelled, func(p *Post) {
		p.ScheduledAt = nil
	})
}

// SetQueueRanks implements Repository.
func (ms *MemoryStorage) SetQueueRanks(ctx context.Context, ranks map[uuid.UUID]int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for id := range ranks {
		if _, exists := ms.posts[id]; !exists {
			return ErrPostNotFound
		}
	}
	for id, rank := range ranks {
		ms.posts[id].QueueRank = rank
		if rank > ms.maxRank {
			ms.maxRank = rank
		}
	}
	return nil
}

// NextQueueRank implements Repository.
func (ms *MemoryStorage) NextQueueRank(ctx context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.maxRank++
	return ms.maxRank, nil
}

// CountAt implements Repository.
func (ms *MemoryStorage) CountAt(ctx context.Context, platform string, at time.Time) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	count := 0
	for _, post := range ms.posts {
		if post.Platform != platform || !post.Status.Occupies() {
			continue
		}
		if post.ScheduledAt != nil && post.ScheduledAt.Equal(at) {
			count++
		}
	}
	return count, nil
}

// ListScheduledBetween implements Repository.
func (ms *MemoryStorage) ListScheduledBetween(ctx context.Context, platform string, from, to time.Time) ([]Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Post
	for _, post := range ms.posts {
		if post.Platform != platform || post.Status != StatusScheduled || post.ScheduledAt == nil {
			continue
		}
		if post.ScheduledAt.After(from) && post.ScheduledAt.Before(to) {
			out = append(out, *post)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(*out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(*out[j].ScheduledAt)
		}
		return out[i].QueueRank < out[j].QueueRank
	})
	return out, nil
}

// ListDue implements Repository.
func (ms *MemoryStorage) ListDue(ctx context.Context, now time.Time) ([]Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Post
	for _, post := range ms.posts {
		if post.Status != StatusScheduled || post.ScheduledAt == nil {
			continue
		}
		if !post.ScheduledAt.After(now) {
			out = append(out, *post)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(*out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(*out[j].ScheduledAt)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out, nil
}

// ClaimPost implements Repository.
func (ms *MemoryStorage) ClaimPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	err := ms.transition(id, []Status{StatusScheduled}, StatusPublishing, func(p *Post) {
		p.AttemptCount++
	})
	if err != nil {
		return nil, err
	}
	clone := *ms.posts[id]
	return &clone, nil
}

// MarkPosted implements Repository.
func (ms *MemoryStorage) MarkPosted(ctx context.Context, id uuid.UUID, remoteID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.transition(id, []Status{StatusPublishing}, StatusPosted, func(p *Post) {
		p.RemoteID = &remoteID
		p.LastError = nil
	})
}

// MarkFailed implements Repository.
func (ms *MemoryStorage) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.transition(id, []Status{StatusPublishing}, StatusFailed, func(p *Post) {
		p.LastError = &errMsg
	})
}

// ReschedulePost implements Repository.
func (ms *MemoryStorage) ReschedulePost(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.transition(id, []Status{StatusPublishing}, StatusScheduled, func(p *Post) {
		t := at
		p.ScheduledAt = &t
		p.LastError = &errMsg
	})
}

// ReleaseOrphaned implements Repository.
func (ms *MemoryStorage) ReleaseOrphaned(ctx context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	released := 0
	for _, post := range ms.posts {
		if post.Status == StatusPublishing {
			post.Status = StatusScheduled
			post.UpdatedAt = time.Now()
			released++
		}
	}
	return released, nil
}

// RecordAttempt implements Repository.
func (ms *MemoryStorage) RecordAttempt(ctx context.Context, attempt *PublishAttempt) error {
	if attempt == nil {
		return fmt.Errorf("attempt cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	clone := *attempt
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	ms.attempts[clone.PostID] = append(ms.attempts[clone.PostID], clone)
	return nil
}

// ListAttempts implements Repository.
func (ms *MemoryStorage) ListAttempts(ctx context.Context, postID uuid.UUID) ([]PublishAttempt, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]PublishAttempt, len(ms.attempts[postID]))
	copy(out, ms.attempts[postID])
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
