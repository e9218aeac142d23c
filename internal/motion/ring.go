package motion

// Ring is a fixed-capacity ring buffer. Appending beyond capacity drops the
// oldest element.
type Ring[T any] struct {
	buf   []T
	start int
	count int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds a value, evicting the oldest one when full.
func (r *Ring[T]) Append(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int {
	return r.count
}

// At returns the i-th oldest value.
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Back returns the newest value.
func (r *Ring[T]) Back() T {
	return r.At(r.count - 1)
}

// Clear drops all values.
func (r *Ring[T]) Clear() {
	r.start = 0
	r.count = 0
}
