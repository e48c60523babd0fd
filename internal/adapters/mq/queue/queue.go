// Package queue buffers boarding events between intake and the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/metrics"
)

const defaultCapacity = 1024

// Event is what travels through the queue.
type Event = model.BoardingEvent

// Queue is the contract between intake and the workers.
type Queue interface {
	Enqueue(ctx context.Context, e Event) error
	Dequeue(ctx context.Context) (Event, error)
	Len() int
	Close() error
}

// InMemoryQueue is a bounded channel-backed queue. Enqueue never blocks:
// a full queue is reported to the caller as backpressure.
type InMemoryQueue struct {
	mu       sync.RWMutex
	events   chan Event
	capacity int
	closed   bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return q
}

// Enqueue adds an event. It returns ErrQueueFull when the buffer is
// exhausted and ErrClosed after Close.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events are sent by value
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrQueueFull
	}
}

// Dequeue blocks until an event is available, ctx is done, or the queue
// is closed and drained. Events buffered before Close are still delivered.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case e, ok := <-q.events:
		if !ok {
			return Event{}, ErrClosed
		}
		metrics.RecordQueueDequeue()
		q.updateGauges()
		return e, nil
	}
}

// Len returns the number of buffered events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the configured buffer size.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops intake. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.events)
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
