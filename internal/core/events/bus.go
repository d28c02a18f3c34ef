package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives published events. Handlers are invoked synchronously on
// the publisher's goroutine and must not block.
type Handler func(Event)

// Subscription is a cancelable registration on the bus.
type Subscription struct {
	id        string
	eventType Type
	cancel    func()
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) EventType() Type {
	return s.eventType
}

func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Bus is a thread-safe in-memory pub/sub for lifecycle events.
type Bus struct {
	mu sync.RWMutex
	// handlers: event type -> subscription id -> handler
	handlers  map[Type]map[string]Handler
	published uint64
	dropped   uint64
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[Type]map[string]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	id := uuid.NewString()
	b.handlers[eventType][id] = handler

	return &Subscription{
		id:        id,
		eventType: eventType,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if hs, ok := b.handlers[eventType]; ok {
				delete(hs, id)
			}
		},
	}
}

// Publish delivers the event to every subscriber of its type. Events with no
// subscribers are counted as dropped.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	hs := b.handlers[ev.Type]
	handlers := make([]Handler, 0, len(hs))
	for _, h := range hs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	if len(handlers) == 0 {
		b.dropped++
	} else {
		b.published++
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Metrics reports delivered and dropped event counts.
func (b *Bus) Metrics() (published, dropped uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published, b.dropped
}
