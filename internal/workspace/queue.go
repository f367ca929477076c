package workspace

import "sync"

// queue is an unbounded FIFO of closures with a single consumer. Producers
// never block.
type queue struct {
	mu     sync.Mutex
	items  []func()
	ready  chan struct{} // holds one token while items is non-empty
	closed bool
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

// push appends fn. It reports false once the queue is closed.
func (q *queue) push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, fn)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns everything queued so far.
func (q *queue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
