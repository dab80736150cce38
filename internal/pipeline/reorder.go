package pipeline

// Reorder releases indexed results in index order, holding back any result
// that arrives before its predecessors. Workers finish out of order; encoders
// need frames in sequence.
type Reorder[T any] struct {
	pending map[int]T
	next    int
}

// NewReorder creates a buffer expecting index first.
func NewReorder[T any](first int) *Reorder[T] {
	return &Reorder[T]{pending: make(map[int]T), next: first}
}

// Push stores v at index and calls emit for every result that is now in sequence.
// It stops at the first emit error and returns it.
func (r *Reorder[T]) Push(index int, v T, emit func(int, T) error) error {
	r.pending[index] = v
	for {
		item, ok := r.pending[r.next]
		if !ok {
			return nil
		}
		delete(r.pending, r.next)
		if err := emit(r.next, item); err != nil {
			return err
		}
		r.next++
	}
}

// Next returns the index the buffer is waiting for.
func (r *Reorder[T]) Next() int { return r.next }

// Pending returns how many results are held back.
func (r *Reorder[T]) Pending() int { return len(r.pending) }
