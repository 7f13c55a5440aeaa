// Package feed holds the notification buffer: one append-only log of
// admitted activity items, read either as a snapshot or as a stream.
package feed

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
)

// Log keeps the newest admitted items and fans every append out to
// subscribers and callbacks. It is safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	ring      *Ring[activity.Item]
	subs      map[string]*Subscription
	callbacks []func(activity.Item)
}

// NewLog creates a log retaining at most capacity items.
func NewLog(capacity int) *Log {
	return &Log{
		ring: NewRing[activity.Item](capacity),
		subs: make(map[string]*Subscription),
	}
}

// OnAppend registers fn to be called once per appended item, in append order.
// Callbacks run on the appending goroutine and must not block.
func (l *Log) OnAppend(fn func(activity.Item)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Append adds items in order, evicting the oldest beyond capacity.
func (l *Log) Append(items ...activity.Item) {
	if len(items) == 0 {
		return
	}
	l.mu.Lock()
	for _, it := range items {
		l.ring.Push(it)
	}
	subs := make([]*Subscription, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	callbacks := slices.Clone(l.callbacks)
	l.mu.Unlock()

	for _, it := range items {
		for _, fn := range callbacks {
			fn(it)
		}
		for _, s := range subs {
			s.deliver(it)
		}
	}
}

// Snapshot returns a copy of the retained items, oldest first.
func (l *Log) Snapshot() []activity.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Slice()
}

// Len returns the number of retained items.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Len()
}

// Cap returns the retention capacity.
func (l *Log) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Cap()
}

// Resize changes the retention capacity, keeping the newest items.
func (l *Log) Resize(capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.Resize(capacity)
}

// Subscribe returns a stream of items appended from now on. Delivery never
// blocks Append: when the subscriber's buffer is full the item is dropped
// and counted.
func (l *Log) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan activity.Item, buffer),
		log: l,
	}
	l.mu.Lock()
	l.subs[s.id] = s
	l.mu.Unlock()
	return s
}

// Subscribers returns the number of open subscriptions.
func (l *Log) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// CloseSubscriptions closes every open subscription.
func (l *Log) CloseSubscriptions() {
	l.mu.Lock()
	subs := l.subs
	l.subs = make(map[string]*Subscription)
	l.mu.Unlock()
	for _, s := range subs {
		s.closeChan()
	}
}

func (l *Log) unsubscribe(id string) {
	l.mu.Lock()
	delete(l.subs, id)
	l.mu.Unlock()
}

// Subscription is a channel view of the log.
type Subscription struct {
	id      string
	ch      chan activity.Item
	log     *Log
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// ID identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// C returns the receive side of the stream. It is closed by Close.
func (s *Subscription) C() <-chan activity.Item { return s.ch }

// Dropped returns how many items were lost to a full buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.log.unsubscribe(s.id)
	s.closeChan()
}

func (s *Subscription) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(it activity.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- it:
	default:
		s.dropped.Add(1)
	}
}
