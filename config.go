package mempool

// Config provides a PoolConfig with default settings. Pools and registries
// created without an explicit config snapshot this value at creation time.
var Config = NewConfig()

// PoolConfig is used by pools and registries when creating a new instance.
type PoolConfig struct {
	// Checked selects the validating mode: every precondition is verified
	// and violations are reported as distinct errors (ErrOutOfCapacity,
	// ErrInvalidPointer, ErrInvalidSize, ErrInvalidType). With Checked set
	// to false no validation is performed at all and a contract violation
	// is undefined behavior, in exchange for zero overhead on the hot path.
	Checked bool
}

// NewConfig returns a new pool configuration with default settings.
func NewConfig() PoolConfig {
	return PoolConfig{
		Checked: true,
	}
}
