package worker

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO of messages with a single consumer.
type mailbox struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// put appends m and reports whether the mailbox was still open.
func (b *mailbox) put(m Message) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.items = append(b.items, m)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// tryTake pops the oldest message without blocking.
func (b *mailbox) tryTake() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return Message{}, false
	}
	m := b.items[0]
	b.items[0] = Message{}
	b.items = b.items[1:]
	return m, true
}

// wait fires after a put; consumers must drain with tryTake afterwards.
func (b *mailbox) wait() <-chan struct{} {
	return b.notify
}

// take blocks until a message is available, the mailbox is closed and
// drained, or ctx is done.
func (b *mailbox) take(ctx context.Context) (Message, error) {
	for {
		if m, ok := b.tryTake(); ok {
			return m, nil
		}

		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			// a put may have raced the close check above
			if m, ok := b.tryTake(); ok {
				return m, nil
			}
			return Message{}, ErrTerminated
		}

		select {
		case <-b.notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (b *mailbox) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *mailbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
