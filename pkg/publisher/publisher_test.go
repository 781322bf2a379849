package publisher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/postflow/pkg/publisher"
	"github.com/dmitrymomot/postflow/pkg/queue"
)

type noopPublisher struct{ platform string }

func (n noopPublisher) Platform() string { return n.platform }
func (n noopPublisher) Publish(context.Context, queue.Post) (string, error) {
	return "remote-1", nil
}
func (n noopPublisher) RefreshCredential(context.Context, string) error { return nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := publisher.NewRegistry(noopPublisher{platform: "facebook"})
	r.Register(noopPublisher{platform: "linkedin"})

	got, err := r.Get("facebook")
	require.NoError(t, err)
	assert.Equal(t, "facebook", got.Platform())

	_, err = r.Get("threads")
	assert.ErrorIs(t, err, publisher.ErrNoPublisher)

	assert.ElementsMatch(t, []string{"facebook", "linkedin"}, r.Platforms())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("classified errors keep their class", func(t *testing.T) {
		t.Parallel()

		err := publisher.NewError(publisher.ClassRejected, 400, "nope", nil)
		assert.Equal(t, publisher.ClassRejected, publisher.Classify(err))

		wrapped := fmt.Errorf("publish: %w", publisher.NewError(publisher.ClassRateLimited, 429, "", nil))
		assert.Equal(t, publisher.ClassRateLimited, publisher.Classify(wrapped))
	})

	t.Run("deadline is unreachable", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, publisher.ClassUnreachable, publisher.Classify(context.DeadlineExceeded))
	})

	t.Run("unknown errors default to transient", func(t *testing.T) {
		t.Parallel()

		class := publisher.Classify(errors.New("mystery"))
		assert.Equal(t, publisher.ClassUnreachable, class)
		assert.True(t, class.Transient())
	})
}

func TestClassPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, publisher.ClassRateLimited.Transient())
	assert.True(t, publisher.ClassUnreachable.Transient())
	assert.False(t, publisher.ClassRejected.Transient())
	assert.False(t, publisher.ClassAuthExpired.Transient())

	assert.True(t, publisher.ClassRejected.Permanent())
	assert.False(t, publisher.ClassAuthExpired.Permanent())
}

func TestStaticCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		t.Parallel()

		creds := publisher.NewStaticCredentials()
		creds.Set("facebook", "page-1", &oauth2.Token{AccessToken: "tok"})

		token, err := creds.Token(ctx, "facebook", "page-1")
		require.NoError(t, err)
		assert.Equal(t, "tok", token.AccessToken)

		_, err = creds.Token(ctx, "facebook", "page-2")
		assert.ErrorIs(t, err, publisher.ErrCredentialNotFound)
	})

	t.Run("expired token classifies as auth expired", func(t *testing.T) {
		t.Parallel()

		creds := publisher.NewStaticCredentials()
		creds.Set("facebook", "page-1", &oauth2.Token{
			AccessToken: "old",
			Expiry:      time.Now().Add(-time.Hour),
		})

		_, err := creds.Token(ctx, "facebook", "page-1")
		require.Error(t, err)
		assert.Equal(t, publisher.ClassAuthExpired, publisher.Classify(err))
	})

	t.Run("refresh func replaces stored token", func(t *testing.T) {
		t.Parallel()

		creds := publisher.NewStaticCredentials()
		creds.Set("facebook", "page-1", &oauth2.Token{AccessToken: "old"})
		creds.SetRefreshFunc(func(context.Context, string, string) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "new"}, nil
		})

		token, err := creds.Refresh(ctx, "facebook", "page-1")
		require.NoError(t, err)
		assert.Equal(t, "new", token.AccessToken)

		token, err = creds.Token(ctx, "facebook", "page-1")
		require.NoError(t, err)
		assert.Equal(t, "new", token.AccessToken)
	})
}
