package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/postflow/pkg/lock"
	"github.com/dmitrymomot/postflow/pkg/publisher"
	"github.com/dmitrymomot/postflow/pkg/queue"
)

// Repository is the slice of queue.Repository the dispatcher needs.
type Repository interface {
	GetPost(ctx context.Context, id uuid.UUID) (*queue.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]queue.Post, error)
	ClaimPost(ctx context.Context, id uuid.UUID) (*queue.Post, error)
	MarkPosted(ctx context.Context, id uuid.UUID, remoteID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	ReschedulePost(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error
	ReleaseOrphaned(ctx context.Context) (int, error)
	RecordAttempt(ctx context.Context, attempt *queue.PublishAttempt) error
}

// Redistributor re-allocates posts displaced by an out-of-order publish.
// Implemented by queue.Queue.
type Redistributor interface {
	Redistribute(ctx context.Context, platform string, windowStart, windowEnd time.Time) (int, error)
}

// Dispatcher is the periodic background worker that publishes due posts.
type Dispatcher struct {
	repo     Repository
	registry *publisher.Registry

	tickInterval   time.Duration
	retryCeiling   int
	retryBackoff   time.Duration
	publishTimeout time.Duration
	locker         lock.Locker
	redistributor  Redistributor
	logger         *slog.Logger
	now            func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopMu   sync.Mutex
	stopping atomic.Bool
}

// New creates a Dispatcher.
func New(repo Repository, registry *publisher.Registry, opts ...Option) (*Dispatcher, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.locker == nil {
		options.locker = lock.NewKeyedMutex()
	}

	return &Dispatcher{
		repo:           repo,
		registry:       registry,
		tickInterval:   options.tickInterval,
		retryCeiling:   options.retryCeiling,
		retryBackoff:   options.retryBackoff,
		publishTimeout: options.publishTimeout,
		locker:         options.locker,
		redistributor:  options.redistributor,
		logger:         options.logger,
		now:            options.now,
	}, nil
}

// Start recovers orphaned posts and begins the tick loop in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.stopping.Store(false)

	// Posts left in publishing by a crash have no durably recorded outcome;
	// revert them so the next tick retries.
	released, err := d.repo.ReleaseOrphaned(d.ctx)
	if err != nil {
		d.logger.Error("failed to release orphaned posts",
			slog.String("error", err.Error()))
	} else if released > 0 {
		d.logger.Warn("recovered posts orphaned in publishing",
			slog.Int("count", released))
	}

	go d.run()

	d.logger.Info("dispatcher started",
		slog.Duration("tick_interval", d.tickInterval),
		slog.Int("retry_ceiling", d.retryCeiling))

	return nil
}

// Stop halts the tick loop and waits for in-flight publish calls to finish
// or time out; it never aborts one mid-call.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return ErrNotStarted
	}

	d.stopMu.Lock()
	d.stopping.Store(true)
	d.stopMu.Unlock()

	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()

	d.logger.Info("dispatcher stopping, waiting for in-flight publishes")
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")

	return nil
}

// Run starts the dispatcher and returns a function suitable for errgroup.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		if err := d.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return d.Stop()
	}
}

// run is the tick loop.
func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.Tick(d.ctx)
		}
	}
}

// Tick processes every due post once. Due posts are grouped per platform
// account; groups run concurrently while posts inside one group stay in
// scheduled_at order under the account's publish lock. Exported so tests and
// callers can drive the dispatcher without waiting for the timer.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := d.now()
	due, err := d.repo.ListDue(ctx, now)
	if err != nil {
		d.logger.Error("failed to list due posts",
			slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	// Group by account lock key, preserving the due order inside each group.
	groups := make(map[string][]queue.Post)
	var keys []string
	for _, post := range due {
		key := lock.Key(post.Platform, post.Account)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], post)
	}

	var tickWG sync.WaitGroup
	for _, key := range keys {
		d.stopMu.Lock()
		if d.stopping.Load() {
			d.stopMu.Unlock()
			break
		}
		d.wg.Add(1)
		tickWG.Add(1)
		d.stopMu.Unlock()

		go func(posts []queue.Post) {
			defer d.wg.Done()
			defer tickWG.Done()

			for _, post := range posts {
				if ctx.Err() != nil {
					return
				}
				d.dispatch(ctx, post)
			}
		}(groups[key])
	}
	tickWG.Wait()
}

// dispatch publishes one due post under its account lock. A busy lock means
// another publish for the same account is in flight; the post stays due and
// the next tick retries it.
func (d *Dispatcher) dispatch(ctx context.Context, post queue.Post) {
	release, ok, err := d.locker.TryLock(ctx, lock.Key(post.Platform, post.Account))
	if err != nil {
		d.logger.Error("publish lock failed",
			slog.String("post_id", post.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if !ok {
		d.logger.Debug("account busy, post deferred to next tick",
			slog.String("post_id", post.ID.String()),
			slog.String("platform", post.Platform))
		return
	}
	defer release()

	// Claim with compare-and-set: a concurrent PublishNow or a cancellation
	// between listing and claiming loses the post to the other side.
	claimed, err := d.repo.ClaimPost(ctx, post.ID)
	if err != nil {
		d.logger.Debug("post no longer claimable",
			slog.String("post_id", post.ID.String()),
			slog.String("reason", err.Error()))
		return
	}

	d.execute(ctx, claimed)
}
