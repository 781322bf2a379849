package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/postflow/pkg/lock"
	"github.com/dmitrymomot/postflow/pkg/publisher"
	"github.com/dmitrymomot/postflow/pkg/queue"
)

// execute runs a single publish attempt for a post already claimed into
// publishing. Panics in a publisher are contained and treated as a transient
// failure so one broken adapter never kills the loop.
func (d *Dispatcher) execute(ctx context.Context, post *queue.Post) {
	started := d.now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("publisher panicked",
				slog.String("post_id", post.ID.String()),
				slog.String("platform", post.Platform),
				slog.Any("panic", r))
			d.resolveFailure(ctx, post, started, fmt.Errorf("panic in publisher: %v", r))
		}
	}()

	pub, err := d.registry.Get(post.Platform)
	if err != nil {
		// No publisher can ever succeed for this platform; fail permanently
		// rather than burning retries.
		d.recordAttempt(ctx, post, started, queue.AttemptFailure, publisher.ClassRejected, err.Error())
		if err := d.repo.MarkFailed(ctx, post.ID, err.Error()); err != nil {
			d.logger.Error("failed to mark post failed",
				slog.String("post_id", post.ID.String()),
				slog.String("error", err.Error()))
		}
		return
	}

	remoteID, err := d.publishOnce(pub, *post)

	// Credential expiry gets one refresh-and-retry before classification.
	if err != nil && publisher.Classify(err) == publisher.ClassAuthExpired {
		d.logger.Info("credential expired, refreshing",
			slog.String("post_id", post.ID.String()),
			slog.String("platform", post.Platform),
			slog.String("account", post.Account))
		if refreshErr := pub.RefreshCredential(ctx, post.Account); refreshErr != nil {
			d.logger.Error("credential refresh failed",
				slog.String("account", post.Account),
				slog.String("error", refreshErr.Error()))
		} else {
			remoteID, err = d.publishOnce(pub, *post)
		}
	}

	if err != nil {
		d.resolveFailure(ctx, post, started, err)
		return
	}

	d.recordAttempt(ctx, post, started, queue.AttemptSuccess, "", "")
	if err := d.repo.MarkPosted(ctx, post.ID, remoteID); err != nil {
		d.logger.Error("failed to mark post posted",
			slog.String("post_id", post.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	d.logger.Info("post published",
		slog.String("post_id", post.ID.String()),
		slog.String("platform", post.Platform),
		slog.String("remote_id", remoteID),
		slog.Int("attempt", post.AttemptCount))
}

// publishOnce invokes the platform with a detached timeout context so that a
// graceful dispatcher shutdown lets the call finish or time out on its own.
func (d *Dispatcher) publishOnce(pub publisher.Publisher, post queue.Post) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
	defer cancel()
	return pub.Publish(ctx, post)
}

// resolveFailure classifies a failed attempt and decides between backoff
// retry and permanent failure. Failures never vanish: every outcome lands in
// the attempt log and on the post.
func (d *Dispatcher) resolveFailure(ctx context.Context, post *queue.Post, started time.Time, pubErr error) {
	class := publisher.Classify(pubErr)
	d.recordAttempt(ctx, post, started, queue.AttemptFailure, class, pubErr.Error())

	switch {
	case class.Permanent():
		d.failPost(ctx, post, pubErr, "content rejected by platform")
	case post.AttemptCount >= d.retryCeiling:
		d.failPost(ctx, post, pubErr, "retry ceiling reached")
	default:
		retryAt := d.now().Add(d.retryBackoff)
		if err := d.repo.ReschedulePost(ctx, post.ID, retryAt, pubErr.Error()); err != nil {
			d.logger.Error("failed to reschedule post for retry",
				slog.String("post_id", post.ID.String()),
				slog.String("error", err.Error()))
			return
		}
		d.logger.Warn("transient publish failure, retry scheduled",
			slog.String("post_id", post.ID.String()),
			slog.String("platform", post.Platform),
			slog.String("class", string(class)),
			slog.Int("attempt", post.AttemptCount),
			slog.Time("retry_at", retryAt),
			slog.String("error", pubErr.Error()))
	}
}

func (d *Dispatcher) failPost(ctx context.Context, post *queue.Post, pubErr error, reason string) {
	if err := d.repo.MarkFailed(ctx, post.ID, pubErr.Error()); err != nil {
		d.logger.Error("failed to mark post failed",
			slog.String("post_id", post.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Error("post failed permanently",
		slog.String("post_id", post.ID.String()),
		slog.String("platform", post.Platform),
		slog.String("reason", reason),
		slog.Int("attempts", post.AttemptCount),
		slog.String("error", pubErr.Error()))
}

// recordAttempt appends to the publish attempt log. The log is observability
// and accounting only, so a write failure is logged, never propagated.
func (d *Dispatcher) recordAttempt(ctx context.Context, post *queue.Post, started time.Time, outcome queue.AttemptOutcome, class publisher.Class, errMsg string) {
	attempt := &queue.PublishAttempt{
		ID:         uuid.New(),
		PostID:     post.ID,
		StartedAt:  started,
		FinishedAt: d.now(),
		Outcome:    outcome,
		ErrorClass: string(class),
		Error:      errMsg,
	}
	if err := d.repo.RecordAttempt(ctx, attempt); err != nil {
		d.logger.Error("failed to record publish attempt",
			slog.String("post_id", post.ID.String()),
			slog.String("error", err.Error()))
	}
}

// PublishNow promotes a scheduled post past its slot: it claims the post
// immediately, publishes under the same per-account lock the tick path uses,
// and then redistributes posts left between the vacated slot and now.
// Returns ErrAccountBusy when another publish for the account is in flight.
func (d *Dispatcher) PublishNow(ctx context.Context, id uuid.UUID) error {
	post, err := d.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != queue.StatusScheduled {
		return fmt.Errorf("%w: status is %s", ErrNotPromotable, post.Status)
	}
	originalSlot := post.ScheduledAt

	release, ok, err := d.locker.TryLock(ctx, lock.Key(post.Platform, post.Account))
	if err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}
	if !ok {
		return ErrAccountBusy
	}
	defer release()

	claimed, err := d.repo.ClaimPost(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotPromotable, err)
	}

	d.execute(ctx, claimed)

	if d.redistributor != nil && originalSlot != nil {
		moved, err := d.redistributor.Redistribute(ctx, post.Platform, d.now(), *originalSlot)
		if err != nil {
			d.logger.Error("redistribution after promotion failed",
				slog.String("post_id", id.String()),
				slog.String("error", err.Error()))
		} else if moved > 0 {
			d.logger.Info("redistributed posts after promotion",
				slog.String("platform", post.Platform),
				slog.Int("moved", moved))
		}
	}
	return nil
}
