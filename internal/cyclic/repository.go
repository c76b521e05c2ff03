// Package cyclic provides a lock-free wrap-around selector over a fixed,
// non-empty sequence. It is used to hand out user session slots and
// scenarios to the admission loop.
package cyclic

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrEmpty is returned when a repository is built over an empty sequence.
	ErrEmpty = errors.New("cyclic: repository requires a non-empty sequence")

	// ErrStopped is returned by Take after Stop has been called.
	ErrStopped = errors.New("cyclic: repository is stopped")
)

// Repository hands out elements of a fixed sequence in round-robin order.
//
// Take is safe for concurrent use. The cursor advance is a single atomic
// add, so concurrent callers never observe the same cursor position.
type Repository[T any] struct {
	items   []T
	cursor  atomic.Uint64
	stopped atomic.Bool
}

// New creates a repository over a copy of items.
func New[T any](items []T) (*Repository[T], error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}

	backing := make([]T, len(items))
	copy(backing, items)

	return &Repository[T]{items: backing}, nil
}

// Take returns the element under the cursor and advances it.
func (r *Repository[T]) Take() (T, error) {
	if r.stopped.Load() {
		var zero T
		return zero, ErrStopped
	}

	pos := r.cursor.Add(1) - 1
	return r.items[pos%uint64(len(r.items))], nil
}

// Stop invalidates subsequent Take calls. Calling it more than once is a no-op.
func (r *Repository[T]) Stop() {
	r.stopped.Store(true)
}

// Len returns the size of the backing sequence.
func (r *Repository[T]) Len() int {
	return len(r.items)
}

// Items returns a copy of the backing sequence.
func (r *Repository[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}
