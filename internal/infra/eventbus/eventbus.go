// Package eventbus is an in-memory publish/subscribe bus. The chat service
// mirrors its stream events here so out-of-band consumers (the HTTP bridge's
// event feed) can observe completions without holding a request handle.
//
//   - Buffered channel per subscriber (buffer=100).
//   - Publish is non-blocking: a full subscriber buffer drops the event.
//   - No persistence; events are fire-and-forget.
package eventbus

import "sync"

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

const defaultBufferSize = 100

// Bus is the in-memory event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan Event)}
}

// Subscribe registers a subscriber for topic and returns a read-only
// channel. The caller must consume it or accept dropped events.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe and closes it.
func (b *Bus) Unsubscribe(topic string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, c := range subs {
		if c == ch {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

// Publish sends the payload to every subscriber of topic without blocking;
// subscribers with full buffers miss the event. The lock is held across the
// sends so Unsubscribe never closes a channel mid-send.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}
