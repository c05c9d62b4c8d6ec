package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Handler func(ctx context.Context, event Event) error

// Bus is a minimal in-process pub/sub channel for orchestrator lifecycle
// events. Handlers run synchronously on the publishing goroutine; a failing
// handler is logged and never blocks the publisher.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
}

// NewBus creates an in-process event bus.
func NewBus() Bus {
	return &inProcessBus{
		subscribers: make(map[EventType]map[uint64]Handler),
	}
}

type inProcessBus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[uint64]Handler
	nextID      uint64
}

func (b *inProcessBus) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type]))
	for _, h := range b.subscribers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event", string(event.Type)).
				Msg("event handler error")
		}
	}
}

func (b *inProcessBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[uint64]Handler)
	}
	b.subscribers[eventType][id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers[eventType], id)
		b.mu.Unlock()
	}
}
