// Package dispatch implements the Dispatch Queue (C5) of spec.md §4.5: an
// unbounded multi-producer, single-consumer FIFO of EnqueuedMessage. No
// example repo in the corpus exposes an importable unbounded-queue
// primitive (the teacher's own dispatch path is a bounded per-session
// channel, not a broker-wide queue), so this is a small stdlib
// mutex+slice+condition-variable queue; see DESIGN.md.
package dispatch

import (
	"context"
	"sync"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
)

// EnqueuedMessage is spec.md §3's transient queue entry. Sender is nil for
// a server-originated publish.
type EnqueuedMessage struct {
	Message *packet.Message
	Sender  *connection.Connection
}

// Queue is the broker-wide dispatch queue. The zero value is not usable;
// construct with New.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []EnqueuedMessage
	closed bool
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends msg. Never blocks, never fails under normal operation
// (spec.md §4.5).
func (q *Queue) Enqueue(msg EnqueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, msg)
	q.cond.Signal()
}

// Dequeue blocks until an item is available, the queue is closed, or ctx is
// done — the suspension point spec.md §4.6 step 1 and §5 describe.
func (q *Queue) Dequeue(ctx context.Context) (EnqueuedMessage, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if ctx.Err() != nil {
			return EnqueuedMessage{}, false
		}
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return EnqueuedMessage{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the current queue depth, sampled by the dispatch loop for
// the dispatch_queue_depth gauge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every blocked Dequeue with ok=false. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
