package events

import (
	"context"
	"errors"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler and returns a func that removes it. The
	// returned func is safe to call more than once.
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
	Listeners(eventType EventType) int
}

type listener struct {
	id      uint64
	handler EventHandler
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]listener
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]listener),
	}
}

// Publish synchronously invokes handlers for the given event in
// registration order. Handler errors do not stop delivery to the others.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]listener{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, l := range handlers {
		if !d.active(event.Type, l.id) {
			continue
		}
		if err := l.handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[eventType] = append(d.listeners[eventType], listener{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(eventType, id) })
	}
}

// Listeners returns how many handlers are registered for eventType.
func (d *inMemoryDispatcher) Listeners(eventType EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventType])
}

func (d *inMemoryDispatcher) remove(eventType EventType, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current := d.listeners[eventType]
	for i, l := range current {
		if l.id == id {
			d.listeners[eventType] = append(current[:i:i], current[i+1:]...)
			break
		}
	}
	if len(d.listeners[eventType]) == 0 {
		delete(d.listeners, eventType)
	}
}

// active reports whether a listener is still registered. A handler removed
// while a publish is in flight is skipped.
func (d *inMemoryDispatcher) active(eventType EventType, id uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, l := range d.listeners[eventType] {
		if l.id == id {
			return true
		}
	}
	return false
}
