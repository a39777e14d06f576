package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryFeedDeliversToTopicSubscribers(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	var a, b int
	unsubA, err := feed.Subscribe(ctx, "topic-a", func() { a++ })
	require.NoError(t, err)
	_, err = feed.Subscribe(ctx, "topic-b", func() { b++ })
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "topic-a"))
	require.Equal(t, 1, a)
	require.Equal(t, 0, b)

	unsubA()
	unsubA()
	require.NoError(t, feed.Publish(ctx, "topic-a"))
	require.Equal(t, 1, a)
	require.Equal(t, 0, feed.Subscribers("topic-a"))
}

func TestMemoryFeedCloseStopsDelivery(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()
	calls := 0
	_, err := feed.Subscribe(ctx, "topic", func() { calls++ })
	require.NoError(t, err)

	require.NoError(t, feed.Close())
	require.NoError(t, feed.Publish(ctx, "topic"))
	require.Equal(t, 0, calls)
}
