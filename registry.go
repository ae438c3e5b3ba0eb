package mempool

import (
	"fmt"
	"reflect"
)

// DefaultRegistry is the process-wide registry behind Shared and
// SharedGrouped. It is created at package init and lives for the remainder
// of the process; its pools are only ever released by process exit.
var DefaultRegistry = NewRegistry()

// registryKey identifies one pool within a registry. Two element types
// never share a pool, even when their sizes are equal, and distinct groups
// partition pools of the same type into fully independent chunk sequences.
type registryKey struct {
	typ   reflect.Type
	group string
}

// Registry holds one pool per (element type, group) pair, created lazily on
// first access. It exists as an explicit, constructible object so tests can
// work against a fresh instance instead of the process-wide
// DefaultRegistry.
// A registry performs no internal synchronization; concurrent access,
// including concurrent first access to the same key, must be serialized by
// the caller.
type Registry struct {
	pools map[registryKey]*Pool
	cfg   PoolConfig
}

// NewRegistry initializes a new registry using the package-level Config,
// it returns the registry as a pointer.
func NewRegistry() *Registry {
	return NewRegistryWithConfig(Config)
}

// NewRegistryWithConfig initializes a new registry with an explicit
// configuration. Every pool the registry creates inherits it.
func NewRegistryWithConfig(cfg PoolConfig) *Registry {
	return &Registry{
		pools: make(map[registryKey]*Pool),
		cfg:   cfg,
	}
}

// Pool returns the pool backing objects of the given type within the given
// group, creating it on first access. The returned pool stays valid for the
// lifetime of the registry.
// In checked mode a type that contains pointers is rejected with
// ErrInvalidType: slots live outside the Go heap, so the collector would
// never see pointers stored in them.
func (r *Registry) Pool(typ reflect.Type, group string) (*Pool, error) {
	key := registryKey{typ: typ, group: group}
	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	if r.cfg.Checked && typeHasPointers(typ) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, typ)
	}

	pool := NewPoolWithConfig(slotSizeFor(typ), r.cfg)
	r.pools[key] = pool
	return pool, nil
}

// NumPools returns the number of pools the registry has created so far.
func (r *Registry) NumPools() int {
	return len(r.pools)
}

// Release releases every pool of the registry and forgets all keys. Slot
// addresses handed out by any of its pools become dangling.
func (r *Registry) Release() error {
	var firstErr error
	for _, pool := range r.pools {
		if err := pool.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.pools = make(map[registryKey]*Pool)
	return firstErr
}

// slotSizeFor returns the slot size used for objects of the given type.
// Go already pads a type's size to a multiple of its alignment, so slots
// laid out back to back stay aligned; zero-size types are promoted to one
// byte so the free list link fits into the slot.
func slotSizeFor(typ reflect.Type) uintptr {
	size := typ.Size()
	if size == 0 {
		size = 1
	}
	return size
}

// typeHasPointers reports whether values of the given type contain
// pointers the garbage collector would need to see.
func typeHasPointers(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return typ.Len() > 0 && typeHasPointers(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if typeHasPointers(typ.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// pointers, maps, slices, strings, channels, funcs, interfaces
		return true
	}
}
