package lock_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/pkg/lock"
)

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "facebook/page-1", lock.Key("facebook", "page-1"))
}

func TestKeyedMutex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("exclusive per key", func(t *testing.T) {
		t.Parallel()
		km := lock.NewKeyedMutex()

		release, ok, err := km.TryLock(ctx, "facebook/page-1")
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = km.TryLock(ctx, "facebook/page-1")
		require.NoError(t, err)
		assert.False(t, ok)

		release()

		release2, ok, err := km.TryLock(ctx, "facebook/page-1")
		require.NoError(t, err)
		assert.True(t, ok)
		release2()
	})

	t.Run("independent keys", func(t *testing.T) {
		t.Parallel()
		km := lock.NewKeyedMutex()

		r1, ok, err := km.TryLock(ctx, "facebook/page-1")
		require.NoError(t, err)
		require.True(t, ok)
		defer r1()

		r2, ok, err := km.TryLock(ctx, "linkedin/page-1")
		require.NoError(t, err)
		require.True(t, ok)
		defer r2()
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()
		km := lock.NewKeyedMutex()

		release, ok, err := km.TryLock(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		release()
		release()

		// A double release must not free a lock someone else now holds.
		r2, ok, err := km.TryLock(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		defer r2()

		_, ok, err = km.TryLock(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("single winner under contention", func(t *testing.T) {
		t.Parallel()
		km := lock.NewKeyedMutex()

		var wins int
		var mu sync.Mutex
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, _ := km.TryLock(ctx, "contended"); ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestNewRedisLocker(t *testing.T) {
	t.Parallel()
	_, err := lock.NewRedisLocker(nil)
	assert.Error(t, err)
}
