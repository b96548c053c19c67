package storage

import "sync"

// RingBuffer is a generic thread-safe ring buffer that stores a fixed number of items.
// When the buffer is full, adding a new item overwrites the oldest item.
// All operations are O(1) except GetAll() which is O(n) where n is the current size.
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	head     int // next write position
	size     int // current number of items
	total    int // items ever added
	onEvict  func(T)
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
// The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}

	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// OnEvict registers fn to be called with each item that Add overwrites.
// fn runs while the buffer's write lock is held and must not call back into
// the buffer.
func (rb *RingBuffer[T]) OnEvict(fn func(T)) {
	rb.Lock()
	defer rb.Unlock()
	rb.onEvict = fn
}

// Add inserts an item into the ring buffer.
// If the buffer is at capacity, this overwrites the oldest item.
func (rb *RingBuffer[T]) Add(item T) {
	rb.Lock()
	defer rb.Unlock()

	if rb.size == rb.capacity && rb.onEvict != nil {
		rb.onEvict(rb.items[rb.head])
	}

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	rb.total++

	if rb.size < rb.capacity {
		rb.size++
	}
}

// GetAll returns all items in chronological order (oldest to newest).
// The returned slice is a copy and safe to modify.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()

	if rb.size == 0 {
		return nil
	}

	result := make([]T, rb.size)
	oldest := (rb.head - rb.size + rb.capacity) % rb.capacity

	n := copy(result, rb.items[oldest:min(oldest+rb.size, rb.capacity)])
	copy(result[n:], rb.items[:rb.size-n])

	return result
}

// Size returns the current number of items in the buffer.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.size
}

// Capacity returns the maximum capacity of the buffer.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Clear removes all items from the buffer without running the eviction
// callback. The absolute position keeps counting.
func (rb *RingBuffer[T]) Clear() {
	rb.Lock()
	defer rb.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.size = 0
}

// CurrentPosition returns the absolute number of items ever added.
func (rb *RingBuffer[T]) CurrentPosition() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.total
}
