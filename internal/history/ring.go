package history

// ring is a bounded FIFO buffer with a monotonically increasing cursor.
// It is not safe for concurrent use; Store serializes access.
type ring[T any] struct {
	items    []T
	capacity int
	// total counts every item ever appended, so total-len(items) is the
	// cursor of the oldest retained item
	total uint64
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

func (r *ring[T]) append(items ...T) {
	r.items = append(r.items, items...)
	r.total += uint64(len(items))
	r.prune()
}

// prune evicts the oldest entries until len(items) <= capacity
func (r *ring[T]) prune() {
	if len(r.items) <= r.capacity {
		return
	}
	copy(r.items, r.items[len(r.items)-r.capacity:])
	// Zero the tail so evicted values can be collected
	var zero T
	for i := r.capacity; i < len(r.items); i++ {
		r.items[i] = zero
	}
	r.items = r.items[:r.capacity]
}

// last returns a copy of the newest n items, oldest first. n <= 0 means all.
func (r *ring[T]) last(n int) []T {
	if n <= 0 || n > len(r.items) {
		n = len(r.items)
	}
	out := make([]T, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}

// since returns a copy of every retained item appended at or after cursor,
// plus the cursor to pass on the next call. Evicted items are skipped.
func (r *ring[T]) since(cursor uint64) ([]T, uint64) {
	oldest := r.total - uint64(len(r.items))
	if cursor < oldest {
		cursor = oldest
	}
	if cursor >= r.total {
		return nil, r.total
	}
	start := int(cursor - oldest)
	out := make([]T, len(r.items)-start)
	copy(out, r.items[start:])
	return out, r.total
}

func (r *ring[T]) filter(keep func(T) bool) []T {
	var out []T
	for _, item := range r.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// reset drops all items but keeps the cursor monotonic so outstanding
// cursors stay valid
func (r *ring[T]) reset() {
	r.items = make([]T, 0, r.capacity)
}
