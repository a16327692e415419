package server

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO whose producers never block.
type mailbox struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	// ready receives a value whenever an item is pushed or the mailbox is closed.
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{items: queue.New(), ready: make(chan struct{}, 1)}
}

// push appends v and returns false if the mailbox has been closed.
func (m *mailbox) push(v interface{}) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items.Add(v)
	m.mu.Unlock()

	m.notify()
	return true
}

// pop removes the oldest item. ok is false if the mailbox is empty; done is
// true once the mailbox is closed and fully drained.
func (m *mailbox) pop() (v interface{}, ok, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items.Length() == 0 {
		return nil, false, m.closed
	}
	return m.items.Remove(), true, false
}

// close stops the mailbox from accepting new items. Items already queued can
// still be popped.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.notify()
}

func (m *mailbox) notify() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
