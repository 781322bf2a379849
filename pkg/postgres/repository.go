package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/postflow/pkg/queue"
)

// Repository implements queue.Repository on a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository over an existing pool.
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, queue.ErrRepositoryNil
	}
	return &Repository{pool: pool}, nil
}

const postColumns = `id, platform, account, content, media_refs, status, scheduled_at,
	queue_rank, remote_id, last_error, attempt_count, created_at, updated_at`

func scanPost(row pgx.Row) (*queue.Post, error) {
	var p queue.Post
	err := row.Scan(&p.ID, &p.Platform, &p.Account, &p.Content, &p.MediaRefs, &p.Status,
		&p.ScheduledAt, &p.QueueRank, &p.RemoteID, &p.LastError, &p.AttemptCount,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrPostNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]queue.Post, error) {
	defer rows.Close()

	var out []queue.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePost implements queue.Repository.
func (r *Repository) CreatePost(ctx context.Context, post *queue.Post) error {
	if post == nil {
		return queue.ErrPostNil
	}

	mediaRefs := post.MediaRefs
	if mediaRefs == nil {
		mediaRefs = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (id, platform, account, content, media_refs, status, scheduled_at,
			queue_rank, remote_id, last_error, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		post.ID, post.Platform, post.Account, post.Content, mediaRefs, post.Status,
		post.ScheduledAt, post.QueueRank, post.RemoteID, post.LastError,
		post.AttemptCount, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetPost implements queue.Repository.
func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*queue.Post, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	return scanPost(row)
}

// DeletePost implements queue.Repository.
func (r *Repository) DeletePost(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM posts
		WHERE id = $1 AND status IN ('draft', 'queued', 'scheduled')`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// ListPosts implements queue.Repository.
func (r *Repository) ListPosts(ctx context.Context, filter queue.Filter) ([]queue.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		query += fmt.Sprintf(" AND platform = $%d", len(args))
	}
	query += " ORDER BY queue_rank, created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collectPosts(rows)
}

// conflictOrMissing distinguishes a compare-and-set miss from a missing row.
func (r *Repository) conflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var status queue.Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM posts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.ErrPostNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: post is %s", queue.ErrInvalidTransition, status)
}

// SchedulePost implements queue.Repository. The occupancy count and the
// status write run in one transaction under an advisory lock keyed on the
// slot instant, so schedulers in other processes cannot oversubscribe it.
func (r *Repository) SchedulePost(ctx context.Context, id uuid.UUID, at time.Time, capacity int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var platform string
	err = tx.QueryRow(ctx, `SELECT platform FROM posts WHERE id = $1`, id).Scan(&platform)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("load post platform: %w", err)
	}

	// Held until commit or rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		platform, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("lock slot instant: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM posts
		WHERE platform = $1 AND scheduled_at = $2
		  AND status IN ('scheduled', 'publishing') AND id <> $3`,
		platform, at, id).Scan(&count)
	if err != nil {
		return fmt.Errorf("count occupancy: %w", err)
	}
	if count >= capacity {
		return queue.ErrCapacityExceeded
	}

	tag, err := tx.Exec(ctx, `
		UPDATE posts
		SET status = 'scheduled', scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'queued', 'scheduled')`, id, at)
	if err != nil {
		return fmt.Errorf("schedule post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return tx.Commit(ctx)
}

// ReturnToQueue implements queue.Repository.
func (r *Repository) ReturnToQueue(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'queued', scheduled_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return fmt.Errorf("return post to queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// CancelPost implements queue.Repository.
func (r *Repository) CancelPost(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'cancelled', scheduled_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'queued', 'scheduled')`, id)
	if err != nil {
		return fmt.Errorf("cancel post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// SetQueueRanks implements queue.Repository.
func (r *Repository) SetQueueRanks(ctx context.Context, ranks map[uuid.UUID]int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rank update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for id, rank := range ranks {
		tag, err := tx.Exec(ctx, `
			UPDATE posts SET queue_rank = $2, updated_at = now() WHERE id = $1`, id, rank)
		if err != nil {
			return fmt.Errorf("update rank for %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return queue.ErrPostNotFound
		}
	}
	return tx.Commit(ctx)
}

// NextQueueRank implements queue.Repository.
func (r *Repository) NextQueueRank(ctx context.Context) (int, error) {
	var rank int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(queue_rank), 0) + 1 FROM posts`).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("next queue rank: %w", err)
	}
	return rank, nil
}

// CountAt implements queue.Repository.
func (r *Repository) CountAt(ctx context.Context, platform string, at time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM posts
		WHERE platform = $1 AND scheduled_at = $2 AND status IN ('scheduled', 'publishing')`,
		platform, at).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count occupancy: %w", err)
	}
	return count, nil
}

// ListScheduledBetween implements queue.Repository.
func (r *Repository) ListScheduledBetween(ctx context.Context, platform string, from, to time.Time) ([]queue.Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE platform = $1 AND status = 'scheduled'
			AND scheduled_at > $2 AND scheduled_at < $3
		ORDER BY scheduled_at, queue_rank`, platform, from, to)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts: %w", err)
	}
	return collectPosts(rows)
}

// ListDue implements queue.Repository.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]queue.Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	return collectPosts(rows)
}

// ClaimPost implements queue.Repository. The WHERE clause is the
// compare-and-set: only one claimer wins a scheduled post.
func (r *Repository) ClaimPost(ctx context.Context, id uuid.UUID) (*queue.Post, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE posts
		SET status = 'publishing', attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING `+postColumns, id)
	post, err := scanPost(row)
	if errors.Is(err, queue.ErrPostNotFound) {
		return nil, r.conflictOrMissing(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim post: %w", err)
	}
	return post, nil
}

// MarkPosted implements queue.Repository.
func (r *Repository) MarkPosted(ctx context.Context, id uuid.UUID, remoteID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'posted', remote_id = $2, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'publishing'`, id, remoteID)
	if err != nil {
		return fmt.Errorf("mark post posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// MarkFailed implements queue.Repository.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'publishing'`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark post failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// ReschedulePost implements queue.Repository.
func (r *Repository) ReschedulePost(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'scheduled', scheduled_at = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = 'publishing'`, id, at, errMsg)
	if err != nil {
		return fmt.Errorf("reschedule post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// ReleaseOrphaned implements queue.Repository.
func (r *Repository) ReleaseOrphaned(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts SET status = 'scheduled', updated_at = now()
		WHERE status = 'publishing'`)
	if err != nil {
		return 0, fmt.Errorf("release orphaned posts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordAttempt implements queue.Repository.
func (r *Repository) RecordAttempt(ctx context.Context, attempt *queue.PublishAttempt) error {
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}
	id := attempt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO publish_attempts (id, post_id, started_at, finished_at, outcome, error_class, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, attempt.PostID, attempt.StartedAt, attempt.FinishedAt,
		attempt.Outcome, attempt.ErrorClass, attempt.Error)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts implements queue.Repository.
func (r *Repository) ListAttempts(ctx context.Context, postID uuid.UUID) ([]queue.PublishAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, post_id, started_at, finished_at, outcome, error_class, error
		FROM publish_attempts
		WHERE post_id = $1
		ORDER BY started_at`, postID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []queue.PublishAttempt
	for rows.Next() {
		var a queue.PublishAttempt
		if err := rows.Scan(&a.ID, &a.PostID, &a.StartedAt, &a.FinishedAt,
			&a.Outcome, &a.ErrorClass, &a.Error); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
