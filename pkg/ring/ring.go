package ring

// Ring is a fixed-capacity ring buffer. Once full, pushes overwrite the
// oldest element. Not safe for concurrent use; callers hold their own locks.
type Ring[T any] struct {
	buf  []T
	head int
	size int
}

// New creates a ring buffer with the given capacity. Capacity must be > 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends a value, overwriting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.buf[(r.head+r.size)%len(r.buf)] = v
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Full reports whether the buffer holds Cap() elements.
func (r *Ring[T]) Full() bool {
	return r.size == len(r.buf)
}

// Oldest returns the least recently pushed element. The boolean is false
// when the buffer is empty.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[r.head], true
}

// Do calls fn for each element from oldest to newest.
func (r *Ring[T]) Do(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

// Values returns the elements from oldest to newest in a fresh slice.
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, r.size)
	r.Do(func(v T) { out = append(out, v) })
	return out
}
