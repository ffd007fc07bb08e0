// Package events carries state-change notifications between the robot
// model and its observers.
package events

import (
	"sync"
	"time"
)

// SubscriberID uniquely identifies a Bus subscriber.
type SubscriberID uint64

// Handler is invoked when an event is emitted.
type Handler func(Event)

type subscriber struct {
	id     SubscriberID
	fn     Handler
	filter map[Type]struct{}
}

// Bus provides synchronous, typed event dispatch.
// Handlers run in registration order on the emitting goroutine; they must
// not block and must not issue motion commands synchronously.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all event types.
func (b *Bus) Subscribe(fn Handler) SubscriberID {
	return b.SubscribeTypes(fn)
}

// SubscribeTypes registers a handler only for the given event types.
// With no types the handler receives everything.
func (b *Bus) SubscribeTypes(fn Handler, types ...Type) SubscriberID {
	var filter map[Type]struct{}
	if len(types) > 0 {
		filter = make(map[Type]struct{}, len(types))
		for _, t := range types {
			filter[t] = struct{}{}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber{id: id, fn: fn, filter: filter})
	return id
}

// Unsubscribe removes a subscriber by ID.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Emit dispatches an event to all matching subscribers. A nil Bus drops it.
func (b *Bus) Emit(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		s.fn(evt)
	}
}
