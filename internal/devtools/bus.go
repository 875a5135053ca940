package devtools

import (
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler receives the params of an event.
type Handler func(params json.RawMessage)

// Subscription is the handle returned when registering a Handler.
// Cancel removes the handler; it is safe to call more than once and from
// inside the handler itself.
type Subscription struct {
	bus       *Bus
	method    string
	handler   Handler
	once      bool
	fired     atomic.Bool
	cancelled atomic.Bool
}

// Method returns the event name this subscription listens to.
func (s *Subscription) Method() string {
	return s.method
}

// Cancel deregisters the subscription.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s)
}

// Bus fans events out to subscribers keyed by method name.
//
// Subscriber lists are replaced rather than edited in place, and Publish
// works on a copy, so subscribing or cancelling during dispatch never
// disturbs the iteration in progress. A subscription cancelled before its
// turn in the current dispatch is skipped.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

// Subscribe registers h for every event named method.
func (b *Bus) Subscribe(method string, h Handler) *Subscription {
	return b.add(method, h, false)
}

// SubscribeOnce registers h for the next event named method only.
func (b *Bus) SubscribeOnce(method string, h Handler) *Subscription {
	return b.add(method, h, true)
}

func (b *Bus) add(method string, h Handler, once bool) *Subscription {
	s := &Subscription{bus: b, method: method, handler: h, once: once}

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[method]
	next := make([]*Subscription, len(list), len(list)+1)
	copy(next, list)
	b.subs[method] = append(next, s)
	return s
}

func (b *Bus) remove(s *Subscription) {
	s.cancelled.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.method]
	idx := slices.Index(list, s)
	if idx < 0 {
		return
	}
	next := make([]*Subscription, 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)
	if len(next) == 0 {
		delete(b.subs, s.method)
		return
	}
	b.subs[s.method] = next
}

// Publish invokes every handler subscribed to method, in registration order,
// and returns the number of handlers invoked.
func (b *Bus) Publish(method string, params json.RawMessage) int {
	b.mu.RLock()
	snapshot := slices.Clone(b.subs[method])
	b.mu.RUnlock()

	n := 0
	for _, s := range snapshot {
		if s.cancelled.Load() {
			continue
		}
		if s.once {
			if !s.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(s)
		}
		s.handler(params)
		n++
	}
	return n
}

// Len returns the number of live subscribers for method.
func (b *Bus) Len(method string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[method])
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	old := b.subs
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, list := range old {
		for _, s := range list {
			s.cancelled.Store(true)
		}
	}
}
