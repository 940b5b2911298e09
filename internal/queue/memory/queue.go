// Package memory provides the bounded in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/acra-collector/internal/ingest"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = ingest.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan *ingest.Job
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan *ingest.Job, capacity),
	}
}

// Enqueue pushes a job, blocking while the queue is full, or returns if the
// context ends first.
func (q *Queue) Enqueue(ctx context.Context, job *ingest.Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job. A canceled context wins over buffered jobs.
func (q *Queue) Dequeue(ctx context.Context) (*ingest.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return job, nil
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Jobs still buffered can
// be drained by Dequeue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Abandon completes every job still buffered in a closed queue with err and
// returns how many there were. It is a no-op on an open queue.
func (q *Queue) Abandon(err error) int {
	q.closeMu.RLock()
	closed := q.closed
	q.closeMu.RUnlock()
	if !closed {
		return 0
	}
	n := 0
	for job := range q.ch {
		job.Complete(err)
		n++
	}
	return n
}
