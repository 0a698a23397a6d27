package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(dest string) types.DispatchItem {
	return types.DispatchItem{
		DestinationURI: dest,
		Location:       "/subscriptions/test",
		Event: &types.DispatcherEvent{
			ID:          "evt-1",
			ChannelURI:  "event://host/foo",
			Origins:     []string{"event://origin/"},
			ContentType: "application/json",
			Payload:     []byte(`{"x":1}`),
		},
	}
}

func TestMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewMemoryQueue("/subscriptions/test", 10*time.Millisecond)
	defer q.Dispose()

	var delivered []string
	done := make(chan struct{}, 3)
	q.SetDequeueHandler(func(_ context.Context, item types.DispatchItem) bool {
		delivered = append(delivered, item.DestinationURI)
		done <- struct{}{}
		return true
	})

	require.NoError(t, q.Enqueue(testItem("http://a/")))
	require.NoError(t, q.Enqueue(testItem("http://b/")))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("delivery never happened")
		}
	}
	assert.Equal(t, []string{"http://a/", "http://b/"}, delivered)
}

func TestMemoryQueueRetriesOnFailure(t *testing.T) {
	q := NewMemoryQueue("/subscriptions/test", 5*time.Millisecond)
	defer q.Dispose()

	var attempts int
	done := make(chan struct{}, 1)
	q.SetDequeueHandler(func(_ context.Context, item types.DispatchItem) bool {
		attempts++
		if attempts < 3 {
			return false
		}
		done <- struct{}{}
		return true
	})

	require.NoError(t, q.Enqueue(testItem("http://a/")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery never succeeded")
	}
	assert.Equal(t, 3, attempts)
}

func TestMemoryQueueRejectsAfterDispose(t *testing.T) {
	q := NewMemoryQueue("/subscriptions/test", time.Millisecond)
	require.NoError(t, q.Dispose())
	err := q.Enqueue(testItem("http://a/"))
	assert.ErrorIs(t, err, types.ErrQueueDisposed)
}

func TestDurableQueueRoundTripsAndRecovers(t *testing.T) {
	dir := t.TempDir()

	q, err := NewDurableQueue("/subscriptions/test", dir, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)

	blocked := make(chan struct{})
	q.SetDequeueHandler(func(_ context.Context, item types.DispatchItem) bool {
		<-blocked
		return true
	})
	require.NoError(t, q.Enqueue(testItem("http://a/")))
	require.NoError(t, q.Enqueue(testItem("http://b/")))

	// Simulate a crash: dispose without ever letting delivery succeed, so
	// both records remain uncommitted on disk.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Dispose())
	close(blocked)

	recovered, err := NewDurableQueue("/subscriptions/test", dir, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	defer recovered.Dispose()

	var delivered []string
	done := make(chan struct{}, 2)
	recovered.SetDequeueHandler(func(_ context.Context, item types.DispatchItem) bool {
		delivered = append(delivered, item.DestinationURI)
		done <- struct{}{}
		return true
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("recovered queue never redelivered")
		}
	}
	assert.ElementsMatch(t, []string{"http://a/", "http://b/"}, delivered)
}

func TestDurableQueueSkipsTruncatedTailRecord(t *testing.T) {
	dir := t.TempDir()

	q, err := NewDurableQueue("/subscriptions/test", dir, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(testItem("http://a/")))
	require.NoError(t, q.Dispose())

	path := segmentPath(dir, 1)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recovered, err := NewDurableQueue("/subscriptions/test", dir, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	defer recovered.Dispose()

	done := make(chan struct{}, 1)
	recovered.SetDequeueHandler(func(_ context.Context, item types.DispatchItem) bool {
		done <- struct{}{}
		return true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the valid first record to still be redelivered")
	}
}
