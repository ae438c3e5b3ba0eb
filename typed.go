package mempool

import (
	"fmt"
	"reflect"
	"unsafe"
)

// TypedPool is the generic allocator surface over a registry-owned Pool.
// It hands out single objects of type T from chunks shared by every
// TypedPool of the same (type, group) pair within the same registry.
// The memory behind a returned pointer is uninitialized; reused slots still
// hold whatever the previous owner left there plus the free list link.
type TypedPool[T any] struct {
	registry *Registry
	group    string
	pool     *Pool
}

// For returns the pool for objects of type T in the registry's default
// group.
func For[T any](r *Registry) (TypedPool[T], error) {
	return Grouped[T](r, "")
}

// Grouped returns the pool for objects of type T in the given group.
// Groups let independent logical owners avoid sharing any chunks; beyond
// that they behave as identical, independent pools.
func Grouped[T any](r *Registry, group string) (TypedPool[T], error) {
	pool, err := r.Pool(reflect.TypeOf((*T)(nil)).Elem(), group)
	if err != nil {
		return TypedPool[T]{}, err
	}
	return TypedPool[T]{
		registry: r,
		group:    group,
		pool:     pool,
	}, nil
}

// Shared returns the process-wide pool for objects of type T, backed by
// DefaultRegistry. The returned pool stays valid for the remainder of the
// process.
func Shared[T any]() (TypedPool[T], error) {
	return For[T](DefaultRegistry)
}

// SharedGrouped returns the process-wide pool for objects of type T in the
// given group.
func SharedGrouped[T any](group string) (TypedPool[T], error) {
	return Grouped[T](DefaultRegistry, group)
}

// Rebind returns the pool for objects of type U in the same registry and
// group as p. The result is an independent pool keyed by U, not a view
// onto p; a container of T uses this to obtain storage for an internal
// node type U.
func Rebind[U, T any](p TypedPool[T]) (TypedPool[U], error) {
	return Grouped[U](p.registry, p.group)
}

// Allocate hands out one object. count exists for conformance with the
// generic allocator contract and must be 1; checked mode reports any other
// value as ErrInvalidSize, unchecked mode ignores the parameter entirely.
func (p TypedPool[T]) Allocate(count int) (*T, error) {
	if count != 1 && p.pool.cfg.Checked {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, count)
	}
	obj, err := p.pool.Allocate()
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(obj)), nil
}

// Deallocate returns one object to the pool. ptr must be a live allocation
// from this pool and count must be 1, under the same checked/unchecked
// rules as Allocate.
func (p TypedPool[T]) Deallocate(ptr *T, count int) error {
	if count != 1 && p.pool.cfg.Checked {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, count)
	}
	return p.pool.Deallocate(ObjAddr(unsafe.Pointer(ptr)))
}

// Reserve ensures capacity for at least n objects without allocating any.
// It is a hint, never required for correctness.
func (p TypedPool[T]) Reserve(n uint) error {
	return p.pool.Reserve(n)
}

// ElemType advertises the element type this pool allocates.
func (p TypedPool[T]) ElemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Pool exposes the untyped pool backing this TypedPool. Every TypedPool of
// the same (type, group) pair in the same registry shares it.
func (p TypedPool[T]) Pool() *Pool {
	return p.pool
}
