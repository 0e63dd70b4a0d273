// Package eventbus provides topic-scoped publish/subscribe for workflow
// lifecycle events (run started, step dispatched, run completed), adapted
// from orchestrate/hub's Subscribe/Publish shape and
// orchestrate/messaging's Message envelope — generalized from an
// agent.Agent-addressed request/response hub into a plain topic bus with no
// notion of a registered agent identity, since workflow lifecycle
// observers are usually a transport layer (websocket/SSE) rather than
// another agent.Agent.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one published workflow lifecycle event.
type Message struct {
	ID        string
	Topic     string
	Data      any
	Timestamp time.Time
}

func newMessage(topic string, data any) Message {
	return Message{ID: uuid.NewString(), Topic: topic, Data: data, Timestamp: time.Now()}
}

// Subscription is a live registration returned by Subscribe; call Close to
// unregister and release its channel.
type Subscription struct {
	C      <-chan Message
	topic  string
	id     string
	bus    *Bus
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s.topic, s.id)
}

type subscriber struct {
	id string
	ch chan Message
}

// Bus is a topic-scoped pub-sub for workflow lifecycle events. The zero
// value is not usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
	bufferSize  int
}

// New creates a Bus whose subscriber channels are buffered to bufferSize
// (a slow subscriber drops events past that buffer rather than blocking
// Publish — see Publish's doc).
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{subscribers: make(map[string][]subscriber), bufferSize: bufferSize}
}

// Subscribe registers interest in topic ("" subscribes to every topic).
// The returned Subscription's channel is closed when Close is called; the
// bus never closes it otherwise.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := subscriber{id: uuid.NewString(), ch: make(chan Message, b.bufferSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	return &Subscription{C: sub.ch, topic: topic, id: sub.id, bus: b}
}

func (b *Bus) unsubscribe(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, s := range subs {
		if s.id == id {
			close(s.ch)
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers data to every subscriber of topic plus every
// subscriber of the wildcard ("") topic. Delivery is non-blocking: a
// subscriber whose channel is full drops the event rather than stalling
// the publisher, since lifecycle events are a best-effort observability
// stream, not a delivery-guaranteed queue.
func (b *Bus) Publish(ctx context.Context, topic string, data any) {
	msg := newMessage(topic, data)

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subscribers[topic])+len(b.subscribers[""]))
	targets = append(targets, b.subscribers[topic]...)
	if topic != "" {
		targets = append(targets, b.subscribers[""]...)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- msg:
		case <-ctx.Done():
			return
		default:
		}
	}
}
