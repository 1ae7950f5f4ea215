package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine.
type Handler func(Event)

// topicAll matches every topic; used by bridges that forward the full feed.
const topicAll = "*"

type subscription struct {
	topic   string
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. A handler that panics is
// logged and skipped so it cannot break the publish loop or starve other
// subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*subscription
	logger zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[int]*subscription),
		logger: logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*subscription)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = &subscription{topic: topic, handler: h}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.Subscribe(topicAll, h)
}

// Publish delivers an event to all subscribers of its topic, then to
// catch-all subscribers. Delivery is synchronous and in-process.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, 4)
	for _, sub := range b.subs[ev.Topic()] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.subs[topicAll] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ev, h)
	}
}

func (b *Bus) deliver(ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("topic", ev.Topic()).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	h(ev)
}
