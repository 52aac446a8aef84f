// Package buffer provides the append-only dynamic array shared by the chunk's
// code, line and constant tables.
//
// A Buffer tracks its own count and capacity instead of leaning on append's
// growth heuristics, so the allocation policy is fixed and observable:
// capacity goes 0, 8, 16, 32, ... and never shrinks.
package buffer

// MinCapacity is the first capacity allocated for an empty buffer.
const MinCapacity = 8

// GrowCapacity returns the capacity that follows c under the doubling policy.
func GrowCapacity(c int) int {
	if c < MinCapacity {
		return MinCapacity
	}
	return c * 2
}

// Buffer is a growable array of T. The zero value is an empty buffer ready
// for use.
type Buffer[T any] struct {
	count int
	data  []T // len(data) is the capacity
}

// Append adds v to the end of the buffer, growing storage when full.
func (b *Buffer[T]) Append(v T) {
	if b.count == len(b.data) {
		b.grow()
	}
	b.data[b.count] = v
	b.count++
}

func (b *Buffer[T]) grow() {
	data := make([]T, GrowCapacity(len(b.data)))
	copy(data, b.data[:b.count])
	b.data = data
}

// At returns the element at index i. Panics if i is outside [0, Len()).
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.count {
		panic("buffer: index out of range")
	}
	return b.data[i]
}

// Len returns the number of elements in use.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the number of elements allocated.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Slice returns the live elements. The result aliases the buffer's storage
// and must be treated as read-only.
func (b *Buffer[T]) Slice() []T {
	return b.data[:b.count:b.count]
}

// Free releases the storage and resets the buffer to empty. Calling Free on
// an empty buffer is a no-op.
func (b *Buffer[T]) Free() {
	b.data = nil
	b.count = 0
}
