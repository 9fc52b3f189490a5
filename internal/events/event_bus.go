// Package events implements the Activity Bus: a bounded in-process broadcast
// queue that forwards operational events (signals, executions, governance
// decisions, DXY refreshes) to live subscribers such as the WebSocket
// handler, without ever blocking a publisher on a slow listener.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity is the per-subscriber queue depth; the bus keeps no queue
// of its own.
const DefaultCapacity = 10000

// Event is one Activity Bus envelope.
type Event struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// Subscriber is a live per-listener event stream. Events arrive in publish
// order; if the subscriber falls behind and its buffer fills, the bus
// disconnects it rather than blocking the publisher.
type Subscriber struct {
	id     int64
	ch     chan Event
	bus    *Bus
	closed bool
	mu     sync.Mutex
}

// Events returns the channel to range over for delivered events. It is
// closed when the bus unsubscribes this listener.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes the listener and releases its queue.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
}

// Bus is a bounded broadcast queue: publish() enqueues to every subscriber's
// own buffered channel; a full subscriber buffer means that subscriber is
// slow, so it is dropped rather than stalling the publisher.
type Bus struct {
	logger   *zap.Logger
	capacity int

	mu     sync.RWMutex
	nextID int64
	subs   map[int64]*Subscriber
}

// New constructs an Activity Bus with the default capacity.
func New(logger *zap.Logger) *Bus {
	return NewWithCapacity(logger, DefaultCapacity)
}

// NewWithCapacity constructs an Activity Bus with a caller-chosen
// per-subscriber buffer depth.
func NewWithCapacity(logger *zap.Logger, capacity int) *Bus {
	return &Bus{
		logger:   logger.Named("activity_bus"),
		capacity: capacity,
		subs:     make(map[int64]*Subscriber),
	}
}

// Subscribe registers a new listener and returns its event stream.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{
		id:  b.nextID,
		ch:  make(chan Event, b.capacity),
		bus: b,
	}
	b.subs[sub.id] = sub
	return sub
}

// unsubscribe removes and closes a subscriber. Safe to call more than once.
func (b *Bus) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	if ok {
		delete(b.subs, sub.id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Publish broadcasts an event to every connected subscriber. A subscriber
// whose buffer is full is disconnected; no pending event is dropped from any
// buffer, so FIFO delivery order holds for every listener that keeps up.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber buffer full, disconnecting", zap.Int64("subscriber_id", sub.id))
			b.unsubscribe(sub)
		}
	}
}

// PublishType is a convenience wrapper around Publish(NewEvent(...)).
func (b *Bus) PublishType(eventType string, payload any) {
	b.Publish(NewEvent(eventType, payload))
}

// SubscriberCount reports the number of currently connected listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
