package sequence

// Ring is a bounded FIFO queue. Pushing into a full ring evicts the oldest
// element instead of growing or blocking. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity elements. Capacity below 1
// is raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// PushBack appends value. When the ring is full the oldest element is removed
// and returned with evicted set to true.
func (r *Ring[T]) PushBack(value T) (old T, evicted bool) {
	if r.size == len(r.items) {
		old, _ = r.PopFront()
		evicted = true
	}
	r.items[(r.head+r.size)%len(r.items)] = value
	r.size++
	return old, evicted
}

// PushFront prepends value as the oldest element. A full ring keeps its
// contents and hands value straight back as evicted.
func (r *Ring[T]) PushFront(value T) (old T, evicted bool) {
	if r.size == len(r.items) {
		return value, true
	}
	r.head = (r.head - 1 + len(r.items)) % len(r.items)
	r.items[r.head] = value
	r.size++
	return old, false
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	value := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--
	return value, true
}

// Peek returns the oldest element without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.items[r.head], true
}

// Drain removes every element and returns them oldest first.
func (r *Ring[T]) Drain() []T {
	out := make([]T, 0, r.size)
	for r.size > 0 {
		v, _ := r.PopFront()
		out = append(out, v)
	}
	return out
}

// Snapshot returns the elements oldest first without removing them.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Clear removes every element.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

func (r *Ring[T]) Len() int {
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

func (r *Ring[T]) IsEmpty() bool {
	return r.size == 0
}
