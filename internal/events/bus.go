// Package events provides a typed in-process publish/subscribe bus for
// domain events.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/domain"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine; slow consumers should hand off to their own channel.
type Handler func(domain.Event)

// Bus fans domain events out to subscribers. A panicking handler is isolated:
// it never prevents delivery to the remaining handlers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	// subs maps event kind -> subscriber id -> handler. The empty kind ""
	// subscribes to all events.
	subs map[domain.EventKind]map[uint64]Handler
	log  logrus.FieldLogger
}

// NewBus creates an empty bus.
func NewBus(log logrus.FieldLogger) *Bus {
	return &Bus{
		subs: make(map[domain.EventKind]map[uint64]Handler),
		log:  log,
	}
}

// Subscribe registers a handler for one event kind and returns an
// unsubscribe function. The unsubscribe function is idempotent.
func (b *Bus) Subscribe(kind domain.EventKind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]Handler)
	}
	b.subs[kind][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[kind], id)
	}
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.Subscribe("", h)
}

// Publish delivers the event to all matching subscribers.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Kind])+len(b.subs[""]))
	for _, h := range b.subs[ev.Kind] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[""] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

// deliver invokes one handler, recovering from panics so one bad listener
// cannot break the others.
func (b *Bus) deliver(h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.WithFields(logrus.Fields{
				"kind":  ev.Kind,
				"panic": r,
			}).Error("event handler panicked")
		}
	}()
	h(ev)
}
