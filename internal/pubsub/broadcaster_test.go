package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestPublishFansOutInOrder(t *testing.T) {
	b := NewBroadcaster[int](nil)
	first := b.Subscribe(context.Background(), 4)
	second := b.Subscribe(context.Background(), 4)

	for i := 1; i <= 3; i++ {
		b.Publish(i)
	}

	for _, sub := range []*Subscription[int]{first, second} {
		assert.Equal(t, 1, receive(t, sub))
		assert.Equal(t, 2, receive(t, sub))
		assert.Equal(t, 3, receive(t, sub))
	}
}

func TestSubscribeDoesNotReplay(t *testing.T) {
	b := NewBroadcaster[string](nil)
	b.Publish("before")

	sub := b.Subscribe(context.Background(), 1)
	b.Publish("after")

	assert.Equal(t, "after", receive(t, sub))
}

func TestCloneGivesIndependentCopies(t *testing.T) {
	b := NewBroadcaster[[]byte](func(v []byte) []byte { return append([]byte(nil), v...) })
	first := b.Subscribe(context.Background(), 1)
	second := b.Subscribe(context.Background(), 1)

	b.Publish([]byte("abc"))

	got := receive(t, first)
	got[0] = 'x'
	assert.Equal(t, []byte("abc"), receive(t, second))
}

func TestContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster[int](nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, 1)
	require.Equal(t, 1, b.Len())

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Equal(t, 0, b.Len())
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestPublishDoesNotBlockOnClosedSubscriber(t *testing.T) {
	b := NewBroadcaster[int](nil)
	slow := b.Subscribe(context.Background(), 1)
	b.Publish(1)

	published := make(chan struct{})
	go func() {
		b.Publish(2)
		close(published)
	}()

	slow.Close()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish stayed blocked on a closed subscriber")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := NewBroadcaster[int](nil)
	sub := b.Subscribe(context.Background(), 1)

	b.Close()
	b.Publish(1)

	_, ok := <-sub.C
	assert.False(t, ok)

	late := b.Subscribe(context.Background(), 1)
	_, ok = <-late.C
	assert.False(t, ok)
}

func TestDropOldestKeepsLatest(t *testing.T) {
	b := NewBroadcaster[int](nil, WithOverflow(DropOldest))
	stalled := b.Subscribe(context.Background(), 2)

	published := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			b.Publish(i)
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full drop-oldest subscriber")
	}

	assert.Equal(t, 4, receive(t, stalled))
	assert.Equal(t, 5, receive(t, stalled))
	assert.Equal(t, uint64(3), stalled.Dropped())
}

func TestEvictEndsStalledSubscriberOnly(t *testing.T) {
	b := NewBroadcaster[int](nil, WithOverflow(Evict))
	stalled := b.Subscribe(context.Background(), 1)
	live := b.Subscribe(context.Background(), 8)

	published := make(chan struct{})
	go func() {
		for i := 1; i <= 3; i++ {
			b.Publish(i)
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full evict subscriber")
	}

	select {
	case <-stalled.Done():
	case <-time.After(time.Second):
		t.Fatal("stalled subscriber was not evicted")
	}
	assert.True(t, stalled.Overflowed())
	assert.Equal(t, 1, receive(t, stalled), "values buffered before eviction stay readable")
	_, ok := <-stalled.C
	assert.False(t, ok)

	assert.False(t, live.Overflowed())
	assert.Equal(t, 1, receive(t, live))
	assert.Equal(t, 2, receive(t, live))
	assert.Equal(t, 3, receive(t, live))
	assert.Equal(t, 1, b.Len())
}
