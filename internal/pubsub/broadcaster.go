// Package pubsub provides an ordered in-process fan-out used by the session
// manager and the aggregation engine.
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber buffer used when Subscribe gets a
// non-positive size.
const DefaultBuffer = 16

// Overflow decides what Publish does when a subscriber's buffer is full.
type Overflow int

const (
	// Block waits until the subscriber receives or goes away.
	Block Overflow = iota
	// DropOldest discards the oldest buffered value so the newest always
	// fits. Suited to streams where only the latest state matters.
	DropOldest
	// Evict ends the full subscription. Subscribers that keep up still see
	// every value in order; Overflowed reports an evicted one.
	Evict
)

func (o Overflow) String() string {
	switch o {
	case DropOldest:
		return "drop-oldest"
	case Evict:
		return "evict"
	default:
		return "block"
	}
}

// BroadcasterOption customises a Broadcaster.
type BroadcasterOption func(*broadcasterConfig)

type broadcasterConfig struct {
	overflow Overflow
}

// WithOverflow sets the full-buffer policy. The default is Block.
func WithOverflow(o Overflow) BroadcasterOption {
	return func(c *broadcasterConfig) { c.overflow = o }
}

// Broadcaster delivers every published value to all current subscribers in
// publish order. Subscribers never see values published before they joined.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     map[*Subscription[T]]struct{}
	clone    func(T) T
	overflow Overflow
	closed   bool
}

// NewBroadcaster creates a broadcaster. When clone is non-nil every subscriber
// receives its own copy of each value.
func NewBroadcaster[T any](clone func(T) T, opts ...BroadcasterOption) *Broadcaster[T] {
	var cfg broadcasterConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Broadcaster[T]{
		subs:     make(map[*Subscription[T]]struct{}),
		clone:    clone,
		overflow: cfg.overflow,
	}
}

// Subscription is one consumer of a Broadcaster. Values arrive on C, which is
// closed once the subscription ends.
type Subscription[T any] struct {
	C <-chan T

	ch         chan T
	done       chan struct{}
	mu         sync.Mutex
	closed     bool
	once       sync.Once
	detach     func(*Subscription[T])
	dropped    atomic.Uint64
	overflowed atomic.Bool
}

// Subscribe registers a new subscriber. The subscription ends when ctx is
// done, Close is called on it, or the broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)
	sub := &Subscription[T]{
		C:      ch,
		ch:     ch,
		done:   make(chan struct{}),
		detach: b.remove,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.finish()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, sub.Close)
	}
	return sub
}

// Publish hands v to every current subscriber. What happens at a full buffer
// depends on the Overflow policy; only Block ever waits.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		value := v
		if b.clone != nil {
			value = b.clone(v)
		}
		if !sub.deliver(value, b.overflow) {
			sub.overflowed.Store(true)
			sub.Close()
		}
	}
}

// Len reports the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later Subscribe calls return closed
// subscriptions and Publish becomes a no-op.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.finish()
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// deliver reports false when an Evict subscriber had no room for v.
func (s *Subscription[T]) deliver(v T, overflow Overflow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	switch overflow {
	case DropOldest:
		// senders hold s.mu, so one discard always frees a slot
		for {
			select {
			case s.ch <- v:
				return true
			default:
			}
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
		}
	case Evict:
		select {
		case s.ch <- v:
			return true
		default:
			return false
		}
	default:
		select {
		case s.ch <- v:
		case <-s.done:
		}
		return true
	}
}

// Dropped counts values discarded under DropOldest.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Overflowed reports whether the subscription was ended by Evict.
func (s *Subscription[T]) Overflowed() bool {
	return s.overflowed.Load()
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. Buffered values not yet received are discarded once C
// is drained.
func (s *Subscription[T]) Close() {
	s.detach(s)
	s.finish()
}

func (s *Subscription[T]) finish() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
