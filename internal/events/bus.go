package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the subscription buffer used when Subscribe is given a non-positive size
const DefaultBufferSize = 64

// Bus fans events out to subscribers over bounded channels. Publish never
// blocks: when a subscriber's buffer is full the event is dropped for that
// subscriber and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	dropped atomic.Int64
}

// Subscription is a registered listener. Events arrive on C until the
// subscription or the bus is closed, after which C is closed.
type Subscription struct {
	C <-chan *Event

	id     uint64
	ch     chan *Event
	filter map[EventType]bool
	bus    *Bus
	once   sync.Once
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a listener with the given buffer size. When eventTypes
// is non-empty only those types are delivered. Subscribing to a closed bus
// returns a subscription whose channel is already closed.
func (b *Bus) Subscribe(buffer int, eventTypes ...EventType) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan *Event, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	if len(eventTypes) > 0 {
		sub.filter = make(map[EventType]bool, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers an event to every matching subscriber without blocking
func (b *Bus) Publish(e *Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter[e.Type] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were dropped because a buffer was full
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(b.subs, id)
	}
}

// Close unregisters the subscription and closes its channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}
