package compute

import (
	"errors"
	"fmt"
)

// ErrAllocationFailure is returned when a buffer would have to grow past
// its configured limit. It signals a capacity misconfiguration and is never
// retried.
var ErrAllocationFailure = errors.New("allocation failure")

// Buffer owns a resizable backing array, standing in for a device-resident
// array: it is sized explicitly, grown by reallocation-and-copy and dropped
// with Release when its owner goes away.
type Buffer[T any] struct {
	label string
	data  []T
	limit int
}

// NewBuffer allocates capacity elements up front. limit caps later growth;
// limit <= 0 means capacity is the limit.
func NewBuffer[T any](label string, capacity, limit int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	if limit <= 0 {
		limit = capacity
	}
	if capacity > limit {
		capacity = limit
	}
	return &Buffer[T]{
		label: label,
		data:  make([]T, 0, capacity),
		limit: limit,
	}
}

// Resize sets the length to n. Existing elements are kept; growing past the
// current capacity reallocates (doubling, clamped to the limit) and copies.
func (b *Buffer[T]) Resize(n int) error {
	if n < 0 {
		n = 0
	}
	if n > b.limit {
		return fmt.Errorf("buffer %q: %d elements requested, limit %d: %w", b.label, n, b.limit, ErrAllocationFailure)
	}
	if n <= cap(b.data) {
		b.data = b.data[:n]
		return nil
	}

	newCap := cap(b.data) * 2
	if newCap < n {
		newCap = n
	}
	if newCap > b.limit {
		newCap = b.limit
	}
	grown := make([]T, n, newCap)
	copy(grown, b.data)
	b.data = grown
	return nil
}

// Slice returns the live elements. The slice is invalidated by Resize.
func (b *Buffer[T]) Slice() []T { return b.data }

func (b *Buffer[T]) Len() int { return len(b.data) }
func (b *Buffer[T]) Cap() int { return cap(b.data) }
func (b *Buffer[T]) Limit() int { return b.limit }
func (b *Buffer[T]) Label() string { return b.label }

// Release drops the backing storage.
func (b *Buffer[T]) Release() {
	b.data = nil
}
