package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrymomot/postflow/pkg/queue"
)

// Publisher is the per-platform publishing capability. Implementations wrap
// one platform API and classify its failures into this package's taxonomy.
type Publisher interface {
	// Platform returns the platform key posts select this publisher by.
	Platform() string

	// Publish sends the post to the platform and returns the remote post id.
	Publish(ctx context.Context, post queue.Post) (remoteID string, err error)

	// RefreshCredential renews the credential of the given account. Called
	// by the dispatcher when a publish attempt fails with ClassAuthExpired.
	RefreshCredential(ctx context.Context, account string) error
}

// Registry maps platform keys to publishers. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

// NewRegistry creates a registry, optionally pre-registering publishers.
func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the publisher for its platform.
func (r *Registry) Register(p Publisher) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

// Get returns the publisher for a platform or ErrNoPublisher.
func (r *Registry) Get(platform string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPublisher, platform)
	}
	return p, nil
}

// Platforms returns the registered platform keys.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.publishers))
	for k := range r.publishers {
		keys = append(keys, k)
	}
	return keys
}
