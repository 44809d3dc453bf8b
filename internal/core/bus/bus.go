// Package bus relays call lifecycle events from the coordinator to UI
// consumers. Delivery is synchronous, in subscription order, once per publish.
package bus

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type Handler func(domain.Event)

type subscription struct {
	id int
	fn Handler
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[domain.EventKind][]subscription
}

func New() *Bus {
	return &Bus{
		subs: make(map[domain.EventKind][]subscription),
	}
}

// Subscribe registers fn for kind. Handlers run on the publisher's goroutine
// and must not block on the publisher.
func (b *Bus) Subscribe(kind domain.EventKind, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *Bus) remove(kind domain.EventKind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[ev.Kind]))
	for i, s := range b.subs[ev.Kind] {
		handlers[i] = s.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
