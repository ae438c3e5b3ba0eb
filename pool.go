package mempool

import (
	"fmt"
	"strings"

	"github.com/willf/bitset"
)

// ObjAddr is a uintptr used for storing the addresses of slots handed out
// by a pool. The backing memory is mmap'd outside the Go heap, so the
// address stays valid until the slot's chunk is released.
type ObjAddr = uintptr

// Pool presents an unbounded allocation surface for objects of one fixed
// size, backed by a growing and shrinking sequence of chunks. Chunks are
// kept in creation order and allocation is first-fit in that order. A pool
// is not safe for concurrent use; callers must serialize access.
type Pool struct {
	slotSize uintptr
	chunks   []*chunk

	// full tracks exhausted chunks by their position in the chunks slice,
	// so the allocation scan can skip them without touching the chunk.
	full *bitset.BitSet

	cfg PoolConfig
}

// NewPool initializes a new pool for objects of the given size using the
// package-level Config, it returns the pool as a pointer.
// A slot must be able to hold the one-byte free list link, so a slotSize of
// zero is promoted to one byte.
func NewPool(slotSize uintptr) *Pool {
	return NewPoolWithConfig(slotSize, Config)
}

// NewPoolWithConfig initializes a new pool with an explicit configuration.
func NewPoolWithConfig(slotSize uintptr, cfg PoolConfig) *Pool {
	if slotSize == 0 {
		slotSize = 1
	}
	return &Pool{
		slotSize: slotSize,
		full:     bitset.New(0),
		cfg:      cfg,
	}
}

// Allocate hands out the address of one free slot. It scans the chunks in
// creation order for the first one with free capacity, skipping chunks the
// full bitset marks as exhausted, and appends a new chunk when none has
// space. Every address returned is distinct from all currently outstanding
// addresses of this pool.
// On failure the second returned value is the error; the only failure in a
// correctly used pool is the operating system refusing to map a new chunk.
func (p *Pool) Allocate() (ObjAddr, error) {
	idx := -1
	for i := range p.chunks {
		if !p.full.Test(uint(i)) {
			idx = i
			break
		}
	}

	if idx < 0 {
		// every chunk is full, so we add a new one
		var err error
		idx, err = p.addChunk()
		if err != nil {
			return 0, err
		}
	}

	currentChunk := p.chunks[idx]

	var obj ObjAddr
	if p.cfg.Checked {
		var err error
		obj, err = currentChunk.allocateChecked()
		if err != nil {
			return 0, err
		}
	} else {
		obj = currentChunk.allocate()
	}

	if !currentChunk.hasSpace() {
		// mark that chunk as being full
		p.full.Set(uint(idx))
	}

	return obj, nil
}

// Deallocate returns the slot at obj to the chunk that owns it. If the
// chunk becomes entirely free it is removed from the pool and its buffer
// is unmapped right away rather than cached for reuse; oscillating
// allocate/free patterns pay for chunk re-creation, idle pools hold no
// memory.
// In checked mode an address that no chunk owns, or that is not a live
// allocation, returns ErrInvalidPointer. In unchecked mode an unroutable
// address is silently ignored.
func (p *Pool) Deallocate(obj ObjAddr) error {
	for idx, currentChunk := range p.chunks {
		if !currentChunk.contains(obj) {
			continue
		}

		if p.cfg.Checked {
			if err := currentChunk.deallocateChecked(obj); err != nil {
				return err
			}
		} else {
			currentChunk.deallocate(obj)
		}

		if currentChunk.isFree() {
			return p.removeChunk(idx)
		}

		p.full.Clear(uint(idx))
		return nil
	}

	if p.cfg.Checked {
		return fmt.Errorf("%w: address %#x is not owned by any chunk of this pool", ErrInvalidPointer, obj)
	}
	return nil
}

// Reserve ensures the pool owns enough chunks to hold at least n objects
// without further mapping, appending empty chunks as needed. It performs no
// allocations and never shrinks the pool; asking for a capacity the pool
// already has is a no-op.
func (p *Pool) Reserve(n uint) error {
	needed := int((n + chunkSlots - 1) / chunkSlots)
	for len(p.chunks) < needed {
		if _, err := p.addChunk(); err != nil {
			return err
		}
	}
	return nil
}

// Release unmaps every chunk of the pool. Outstanding slot addresses become
// dangling, which is a caller error. The pool itself stays usable and
// starts over empty.
func (p *Pool) Release() error {
	var firstErr error
	for _, currentChunk := range p.chunks {
		if err := currentChunk.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.chunks = nil
	p.full = bitset.New(0)
	return firstErr
}

// NumChunks returns the number of chunks currently owned by the pool.
func (p *Pool) NumChunks() int {
	return len(p.chunks)
}

// Cap returns the total number of slots currently owned by the pool,
// free or allocated.
func (p *Pool) Cap() uint {
	return uint(len(p.chunks)) * chunkSlots
}

// SlotSize returns the fixed size in bytes of the slots this pool hands
// out.
func (p *Pool) SlotSize() uintptr {
	return p.slotSize
}

// addChunk appends a new chunk to the pool.
// On success the first returned value is the index of the new chunk.
// On failure the second returned value is the mmap error.
func (p *Pool) addChunk() (int, error) {
	addedChunk, err := newChunk(p.slotSize)
	if err != nil {
		return 0, err
	}
	p.chunks = append(p.chunks, addedChunk)
	return len(p.chunks) - 1, nil
}

// removeChunk releases the chunk at the given index, drops it from the
// chunk sequence and shifts the full bitset down to keep bit positions
// aligned with chunk indices.
func (p *Pool) removeChunk(idx int) error {
	currentChunk := p.chunks[idx]

	// delete the chunk from the chunk slice, preserving creation order
	copy(p.chunks[idx:], p.chunks[idx+1:])
	p.chunks[len(p.chunks)-1] = nil
	p.chunks = p.chunks[:len(p.chunks)-1]

	if words := p.full.Bytes(); len(words) > 0 {
		p.full = bitset.From(bitSetRemove(words, uint(idx)))
	}

	return currentChunk.release()
}

// bitSetRemove takes a slice of uint64 and an index, deletes the bit at the
// index position and shifts all higher bits down by one. The word layout is
// the one used by bitset.BitSet: bit i lives in word i/64 at bit position
// i%64.
// f.e. 0b1101 with remove index 1 would become 0b111
func bitSetRemove(b []uint64, idx uint) []uint64 {
	word := idx / 64
	if word >= uint(len(b)) {
		// no bit at or above the removed position is set
		return b
	}

	// bits below the removed position stay in place
	keep := (uint64(1) << (idx % 64)) - 1
	b[word] = (b[word] & keep) | ((b[word] >> 1) &^ keep)

	for i := word + 1; i < uint(len(b)); i++ {
		// the lowest bit of each following word moves into the highest
		// bit of the word before it
		b[i-1] |= (b[i] & 1) << 63
		b[i] >>= 1
	}

	return b
}

// String creates a multi-line string which illustrates the pool and all of
// its chunks in a human-readable format.
func (p *Pool) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pool Slot Size: %d\n", p.slotSize)
	fmt.Fprintf(&b, "Pool Chunks: %d\n", len(p.chunks))
	for _, currentChunk := range p.chunks {
		fmt.Fprintf(&b, "%s", currentChunk.String())
	}

	return b.String()
}
