package queuestore

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/dispatchd/pkg/queue"
	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(location string, expiring bool) *types.SubscriptionSet {
	return &types.SubscriptionSet{
		OwnerURI: "http://owner/",
		Location: location,
		Subscriptions: []*types.Subscription{
			{
				ID:             "sub-1",
				Channels:       []string{"event://*/foo"},
				DestinationURI: "http://sub/",
				Recipients:     []string{"http://sub/"},
			},
		},
		HasExpiration: expiring,
	}
}

func TestMemoryRepositoryLifecycle(t *testing.T) {
	r := NewMemoryRepository(time.Millisecond)
	defer r.Dispose()

	set := testSet("/subscriptions/a", false)
	require.NoError(t, r.RegisterOrUpdate(set))

	q, ok := r.Get("/subscriptions/a")
	require.True(t, ok)
	require.NotNil(t, q)

	pending, err := r.Initialize(func(context.Context, types.DispatchItem) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = r.Initialize(func(context.Context, types.DispatchItem) bool { return true })
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	require.NoError(t, r.Delete(set))
	_, ok = r.Get("/subscriptions/a")
	assert.False(t, ok)
}

func TestDurableRepositoryRecoversDescriptorsAndQueues(t *testing.T) {
	root := t.TempDir()

	r1, err := NewDurableRepository(root, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)

	set := testSet("/subscriptions/b", true)
	require.NoError(t, r1.RegisterOrUpdate(set))

	q, ok := r1.Get("/subscriptions/b")
	require.True(t, ok)
	require.NoError(t, q.Enqueue(types.DispatchItem{
		DestinationURI: "http://sub/",
		Location:       "/subscriptions/b",
		Event:          &types.DispatcherEvent{ID: "e1", ChannelURI: "event://x/foo"},
	}))
	require.NoError(t, r1.Dispose())

	r2, err := NewDurableRepository(root, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	defer r2.Dispose()

	pending, err := r2.Initialize(func(context.Context, types.DispatchItem) bool { return true })
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/subscriptions/b", pending[0].Location)

	_, ok = r2.Get("/subscriptions/b")
	assert.True(t, ok)
}

func TestRouterDispatchesByExpiration(t *testing.T) {
	root := t.TempDir()
	durable, err := NewDurableRepository(root, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	router := &Router{
		Memory:  NewMemoryRepository(5 * time.Millisecond),
		Durable: durable,
	}
	defer router.Dispose()

	memSet := testSet("/subscriptions/mem", false)
	durSet := testSet("/subscriptions/dur", true)

	require.NoError(t, router.RegisterOrUpdate(memSet))
	require.NoError(t, router.RegisterOrUpdate(durSet))

	memQ, ok := router.Get("/subscriptions/mem")
	require.True(t, ok)
	_, isMemory := memQ.(*queue.MemoryQueue)
	assert.True(t, isMemory)

	durQ, ok := router.Get("/subscriptions/dur")
	require.True(t, ok)
	_, isDurable := durQ.(*queue.DurableQueue)
	assert.True(t, isDurable)

	pending, err := router.Initialize(func(context.Context, types.DispatchItem) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, pending)
}
