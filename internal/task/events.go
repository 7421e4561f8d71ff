package task

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind discriminates stream events.
type EventKind string

const (
	// KindStatus reports a lifecycle state, optionally with a message.
	KindStatus EventKind = "status"

	// KindArtifact carries one fragment of generated answer text.
	KindArtifact EventKind = "artifact"
)

// Event is one unit of task output emitted to the caller.
type Event struct {
	Kind    EventKind
	TaskID  uuid.UUID
	State   State  // set for KindStatus
	Message string // progress or failure detail for KindStatus
	Text    string // fragment text for KindArtifact
	Final   bool   // true on the stream's single terminal event
}

// EventQueue is the ordered stream of events for one task execution.
//
// The producer (Executor) enqueues events and closes the queue on the
// terminal state; nothing can be enqueued afterwards, which is how late
// results for an already-terminal task are discarded. The consumer ranges
// over Events and calls Abandon when it stops listening so the producer
// never blocks on a departed consumer.
type EventQueue struct {
	ch   chan Event
	done chan struct{}

	mu     sync.Mutex
	closed bool

	abandonOnce sync.Once
}

// NewEventQueue creates an event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the receive side of the queue. The channel is closed after
// the terminal event.
func (q *EventQueue) Events() <-chan Event {
	return q.ch
}

// Enqueue appends an event. Events enqueued after Close or Abandon are
// silently dropped.
func (q *EventQueue) Enqueue(ev Event) {
	// The lock is held across the send so Close cannot close the channel
	// mid-send. The consumer drains on a separate goroutine, so the send
	// always completes or the queue is abandoned.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	select {
	case q.ch <- ev:
	case <-q.done:
	}
}

// Close marks the stream finished. Idempotent.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Abandon signals that the consumer stopped listening. The producer's
// subsequent Enqueue calls return immediately instead of blocking.
func (q *EventQueue) Abandon() {
	q.abandonOnce.Do(func() {
		close(q.done)
	})
}
