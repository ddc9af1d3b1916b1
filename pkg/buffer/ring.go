package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/c360/micropipe/errors"
)

// Ring is a fixed-capacity circular buffer. Reads never block.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	notFull  *sync.Cond
	closed   bool

	writes int64
	drops  int64
}

// Option configures a Ring.
type Option[T any] func(*Ring[T])

// WithOverflowPolicy sets the behavior when the ring is full. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(r *Ring[T]) {
		r.policy = policy
	}
}

// WithDropCallback sets a callback invoked, outside the lock, for each dropped item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(r *Ring[T]) {
		r.onDrop = callback
	}
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	r := &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	r.notFull = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Write appends item. It reports false when the item was not stored: the ring
// is closed or full under DropNewest.
func (r *Ring[T]) Write(item T) (bool, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return false, errors.ErrQueueClosed
	}

	var dropped *T
	if r.size == r.capacity {
		switch r.policy {
		case DropNewest:
			r.mu.Unlock()
			atomic.AddInt64(&r.drops, 1)
			if r.onDrop != nil {
				r.onDrop(item)
			}
			return false, nil
		case Block:
			for r.size == r.capacity && !r.closed {
				r.notFull.Wait()
			}
			if r.closed {
				r.mu.Unlock()
				return false, errors.ErrQueueClosed
			}
		default:
			old := r.items[r.tail]
			dropped = &old
			var zero T
			r.items[r.tail] = zero
			r.tail = (r.tail + 1) % r.capacity
			r.size--
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.mu.Unlock()

	atomic.AddInt64(&r.writes, 1)
	if dropped != nil {
		atomic.AddInt64(&r.drops, 1)
		if r.onDrop != nil {
			r.onDrop(*dropped)
		}
	}
	return true, nil
}

// Read removes and returns the oldest item.
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.notFull.Signal()
	return item, true
}

// Size returns the number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of items.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Writes returns the number of stored items since creation.
func (r *Ring[T]) Writes() int64 {
	return atomic.LoadInt64(&r.writes)
}

// Drops returns the number of items discarded by the overflow policy.
func (r *Ring[T]) Drops() int64 {
	return atomic.LoadInt64(&r.drops)
}

// Close rejects further writes and wakes blocked writers. Buffered items stay readable.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.notFull.Broadcast()
}
