package router

import (
	"sync"

	"github.com/gammazero/deque"
)

// Buffer is an unbounded, thread-safe FIFO. Send never blocks, which makes it
// safe to feed from listener handlers running on the dispatch goroutine.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  deque.Deque[T]
	closed bool

	// Stats
	totalReceived int64
	totalSent     int64
	highWater     int
}

// NewBuffer creates an empty buffer.
func NewBuffer[T any]() *Buffer[T] {
	b := &Buffer[T]{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. Returns false if the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.items.PushBack(item)
	b.totalReceived++
	if n := b.items.Len(); n > b.highWater {
		b.highWater = n
	}

	b.cond.Signal()
	return true
}

// Receive removes and returns the oldest item.
// Blocks until an item is available or the buffer is closed.
// Returns the item and true, or zero value and false if closed and empty.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.items.Len() == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.items.Len() == 0 {
		var zero T
		return zero, false
	}

	b.totalSent++
	return b.items.PopFront(), true
}

// TryReceive attempts to receive without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.items.Len() == 0 {
		var zero T
		return zero, false
	}

	b.totalSent++
	return b.items.PopFront(), true
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (b *Buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.items.Len()
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := range result {
		result[i] = b.items.PopFront()
	}
	b.totalSent += int64(n)
	return result
}

// Close closes the buffer. After closing, Send returns false.
// Receivers will get remaining items then receive closed signal.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of items in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Len()
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.items.Len(),
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		HighWater:     b.highWater,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	TotalReceived int64
	TotalSent     int64
	HighWater     int // largest Count observed
}
