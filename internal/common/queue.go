// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Produce/Consume once Close has been called
// and, for Consume, the queue has drained. It is the Go analogue of
// interrupting a worker thread at its blocking point: closing the queue is
// the cooperative-cancellation signal every worker selects on.
var ErrQueueClosed = errors.New("queue closed")

// BoundedQueue is an ordered FIFO of at most Capacity items with blocking
// Produce (waits while full) and blocking Consume (waits while empty).
// Capacity == -1 means unbounded. It is not restartable: once Close is
// called, Produce always fails and Consume drains whatever remains, then
// fails too.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T
	capacity int
	closed   bool
}

func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	q := &BoundedQueue[T]{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Produce appends an item, blocking while the queue is full. It returns
// ErrQueueClosed if the queue was (or became) closed before the item could
// be accepted, or ctx.Err() if ctx is cancelled first.
func (q *BoundedQueue[T]) Produce(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.capacity >= 0 && len(q.items) >= q.capacity {
		if done := waitOrCancel(ctx, &q.mu, q.notFull); done != nil {
			return done
		}
	}
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// Consume removes and returns the oldest item, blocking while the queue is
// empty. It returns ErrQueueClosed once the queue is closed and drained.
func (q *BoundedQueue[T]) Consume(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for len(q.items) == 0 {
		if q.closed {
			return zero, ErrQueueClosed
		}
		if done := waitOrCancel(ctx, &q.mu, q.notEmpty); done != nil {
			return zero, done
		}
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return item, nil
}

// Len reports the current depth, used by the monitor task (spec §4.5).
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed: pending and future Produce calls fail
// immediately, and Consume returns ErrQueueClosed once drained.
func (q *BoundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// waitOrCancel waits on cond (releasing mu, per sync.Cond contract) but
// also returns ctx.Err() if ctx is cancelled. Since sync.Cond has no
// native cancellation, cancellation is delivered by a helper goroutine
// that broadcasts when ctx is done; it has no effect on any other waiter.
func waitOrCancel(ctx context.Context, mu *sync.Mutex, cond *sync.Cond) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-stop:
		}
	}()
	cond.Wait()
	close(stop)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
