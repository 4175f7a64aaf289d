// Package eventbus broadcasts "something changed" notifications between
// the views of one process.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Topic names a class of change.
type Topic string

const (
	CartUpdated     Topic = "cartUpdated"
	WishlistUpdated Topic = "wishlistUpdated"
)

// Topics lists every topic the engine publishes.
var Topics = []Topic{CartUpdated, WishlistUpdated}

// Event is a change notification. ProductID is set when the change touched a
// single product and is empty otherwise; subscribers still re-read their own
// view of truth.
type Event struct {
	Topic     Topic  `json:"topic"`
	ProductID string `json:"product_id,omitempty"`
}

// Handler receives events for a subscribed topic.
type Handler func(ctx context.Context, ev Event)

// Recorder observes published events.
type Recorder interface {
	RecordEvent(topic string)
}

type subscriber struct {
	id uint64
	h  Handler
}

// Bus is an in-process publish/subscribe mechanism. Delivery is synchronous,
// in subscription order.
type Bus struct {
	logger   *slog.Logger
	recorder Recorder

	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscriber
}

// New creates an empty Bus. recorder may be nil.
func New(logger *slog.Logger, recorder Recorder) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		recorder: recorder,
		subs:     make(map[Topic][]subscriber),
	}
}

// Subscribe registers h for topic and returns a function that removes it.
// Calling the returned function more than once is safe.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to the topic's current subscribers. Handlers
// subscribed or removed during delivery do not affect this publish. A
// panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Topic]
	b.mu.RUnlock()

	if b.recorder != nil {
		b.recorder.RecordEvent(string(ev.Topic))
	}

	for _, s := range subs {
		b.deliver(ctx, s.h, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"topic", string(ev.Topic),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	h(ctx, ev)
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
