// Package queue provides the FIFO buffer queues between API callers, the
// consumer loop and the transport, plus the wake signal that drives the loop.
package queue

import (
	"context"
	"sync"

	"github.com/soypat/winc/internal/pool"
)

// Signal is a level triggered wake-up shared by producers and the single
// consumer. Setting an already set signal is a no-op.
type Signal struct {
	c chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{c: make(chan struct{}, 1)}
}

// Set marks the signal. It never blocks.
func (s *Signal) Set() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// C returns a channel that receives once per Set.
func (s *Signal) C() <-chan struct{} { return s.c }

// Wait blocks until the signal is set or ctx is done. The signal is cleared
// on return.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue is a FIFO of pool buffers safe for concurrent use. Pushing sets the
// attached signal.
type Queue struct {
	mu    sync.Mutex
	items []*pool.Buffer
	head  int
	sig   *Signal
}

// New returns an empty queue that sets sig on every push. sig may be nil.
func New(sig *Signal) *Queue {
	return &Queue{sig: sig}
}

// Push appends b to the tail of the queue.
func (q *Queue) Push(b *pool.Buffer) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
	if q.sig != nil {
		q.sig.Set()
	}
}

// Pop removes and returns the buffer at the head of the queue, or nil if the
// queue is empty.
func (q *Queue) Pop() *pool.Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return nil
	}
	b := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return b
}

// Len returns the number of queued buffers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Drain removes every queued buffer, calling fn on each in FIFO order, and
// returns the number drained. fn is called without the queue lock held.
func (q *Queue) Drain(fn func(*pool.Buffer)) int {
	q.mu.Lock()
	items := q.items[q.head:]
	q.items = nil
	q.head = 0
	q.mu.Unlock()
	for _, b := range items {
		fn(b)
	}
	return len(items)
}
