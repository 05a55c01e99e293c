// Package signal implements the process-wide invalidation channel:
// any caller that learns the current credential is no longer trusted
// publishes on the Bus, and the session manager reacts. It replaces the
// ambient global event the networking layer would otherwise need.
package signal

import "sync"

// Handler receives one invalidation delivery. reason is a short
// human-oriented note about what triggered it.
type Handler func(reason string)

// Bus is a many-producer/many-consumer notification channel. Deliveries
// are serialized: all handlers for one publication run to completion, in
// subscription order, before the next queued publication is dispatched.
// Publish never blocks the publisher: publications queue up to a fixed
// depth, and once the queue is full further ones are dropped. Every
// delivery carries the same "no longer trusted" meaning, so a dropped
// publication is already represented by the ones ahead of it.
type Bus struct {
	mu   sync.Mutex
	subs []subscription
	next int

	ch   chan string
	done chan struct{}
	once sync.Once
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	b := &Bus{
		ch:   make(chan string, 16),
		done: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler and returns its cancel function.
// Cancelling is idempotent.
func (b *Bus) Subscribe(h Handler) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, fn: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish queues one delivery. After Close, or when the queue is full,
// it is a no-op.
func (b *Bus) Publish(reason string) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case <-b.done:
	case b.ch <- reason:
	default:
	}
}

// Close stops dispatching. Queued but undelivered publications are
// dropped.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bus) dispatch() {
	for {
		select {
		case <-b.done:
			return
		case reason := <-b.ch:
			for _, h := range b.snapshot() {
				h(reason)
			}
		}
	}
}

func (b *Bus) snapshot() []Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Handler, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.fn
	}
	return out
}
