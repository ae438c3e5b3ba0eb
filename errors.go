package mempool

import "errors"

// All conditions reported by checked mode are programmer errors, never
// transient: the caller is expected to fix the call site, not retry.
var (
	// ErrOutOfCapacity is returned when an allocation is attempted on a
	// chunk that already reports no free slots. The pool's growth policy
	// prevents this, so seeing it means an internal invariant was broken.
	ErrOutOfCapacity = errors.New("mempool: chunk out of capacity")

	// ErrInvalidPointer is returned when a deallocated address is not owned
	// by any chunk of the pool, does not sit on a slot boundary, or refers
	// to a slot that is already free.
	ErrInvalidPointer = errors.New("mempool: invalid pointer")

	// ErrInvalidSize is returned when a count other than 1 is passed to
	// Allocate or Deallocate. The pool only ever hands out single objects.
	ErrInvalidSize = errors.New("mempool: count must be 1")

	// ErrInvalidType is returned when a pool is requested for an element
	// type that contains pointers. Slots live in mmap'd memory outside the
	// Go heap, so pointers stored there are invisible to the collector.
	ErrInvalidType = errors.New("mempool: element type must not contain pointers")
)
