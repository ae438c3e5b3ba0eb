package mempool

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// chunkSlots is the number of slots in every chunk. The free list link
	// is a single byte stored in the first byte of each free slot, which
	// leaves room for 255 addressable slots plus the terminator value.
	// Widening the link type would raise the capacity at the cost of a
	// larger minimum slot size and bigger per-chunk metadata.
	chunkSlots = 255

	// endOfList is stored as the link of the last free slot. It is never
	// followed because freeCount reaches zero first.
	endOfList = uint8(255)
)

// chunk manages one mmap'd slab of chunkSlots fixed-size slots and the
// intrusive free list threaded through them. The link to the next free slot
// is kept in the first byte of each free slot itself, so free-slot
// bookkeeping costs no memory beyond freeHead and freeCount.
type chunk struct {
	data      []byte
	base      uintptr
	slotSize  uintptr
	freeHead  uint8
	freeCount uint8
}

// newChunk maps an anonymous private region of slotSize*chunkSlots bytes
// and pre-links the free list so that each slot links to its successor,
// with the last slot linking to the endOfList terminator.
// On success the first return value is a pointer to the new chunk and the
// second value is nil.
// On failure the second returned value is the mmap error.
func newChunk(slotSize uintptr) (*chunk, error) {
	data, err := unix.Mmap(-1, 0, int(slotSize)*chunkSlots, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	c := &chunk{
		data:      data,
		base:      uintptr(unsafe.Pointer(&data[0])),
		slotSize:  slotSize,
		freeHead:  0,
		freeCount: chunkSlots,
	}

	for i := uintptr(0); i+1 < chunkSlots; i++ {
		c.data[i*slotSize] = byte(i + 1)
	}
	c.data[(chunkSlots-1)*slotSize] = endOfList

	return c, nil
}

// allocate pops the slot at freeHead off the free list and returns its
// address. The caller must ensure hasSpace() beforehand; allocateChecked
// is the validating variant.
func (c *chunk) allocate() ObjAddr {
	offset := uintptr(c.freeHead) * c.slotSize
	c.freeHead = c.data[offset]
	c.freeCount--
	return c.base + offset
}

// allocateChecked validates that the chunk has a free slot before
// delegating to allocate. An ErrOutOfCapacity from here means the owning
// pool's growth policy failed to keep a free slot available.
func (c *chunk) allocateChecked() (ObjAddr, error) {
	if !c.hasSpace() {
		return 0, fmt.Errorf("%w: chunk at %#x has no free slots", ErrOutOfCapacity, c.base)
	}
	return c.allocate(), nil
}

// deallocate pushes the slot holding obj back onto the free list: the
// current freeHead becomes the freed slot's link and the freed slot becomes
// the new head. Slots are therefore reused most-recently-freed first.
func (c *chunk) deallocate(obj ObjAddr) {
	offset := obj - c.base
	c.data[offset] = c.freeHead
	c.freeHead = uint8(offset / c.slotSize)
	c.freeCount++
}

// deallocateChecked verifies that obj is owned by this chunk, sits on a
// slot boundary and is currently allocated, then delegates to deallocate.
// On violation it returns ErrInvalidPointer and leaves the free list
// untouched.
func (c *chunk) deallocateChecked(obj ObjAddr) error {
	if !c.contains(obj) {
		return fmt.Errorf("%w: address %#x is outside chunk at %#x", ErrInvalidPointer, obj, c.base)
	}
	offset := obj - c.base
	if offset%c.slotSize != 0 {
		return fmt.Errorf("%w: address %#x is not on a slot boundary", ErrInvalidPointer, obj)
	}
	if c.slotIsFree(uint8(offset / c.slotSize)) {
		return fmt.Errorf("%w: address %#x is already free", ErrInvalidPointer, obj)
	}
	c.deallocate(obj)
	return nil
}

// hasSpace reports whether at least one slot is free.
func (c *chunk) hasSpace() bool {
	return c.freeCount != 0
}

// isFree reports whether every slot is free, which makes the chunk
// eligible for release.
func (c *chunk) isFree() bool {
	return c.freeCount == chunkSlots
}

// contains reports whether obj lies within this chunk's slot region.
// It only compares addresses, so it is safe to call with any value.
func (c *chunk) contains(obj ObjAddr) bool {
	return obj >= c.base && obj < c.base+c.slotSize*chunkSlots
}

// slotIsFree walks the free list and reports whether the slot at idx is on
// it. The walk visits at most freeCount slots, so it is bounded by
// chunkSlots; it is only used by checked-mode deallocation.
func (c *chunk) slotIsFree(idx uint8) bool {
	next := c.freeHead
	for i := uint8(0); i < c.freeCount; i++ {
		if next == idx {
			return true
		}
		next = c.data[uintptr(next)*c.slotSize]
	}
	return false
}

// release unmaps the chunk's slot region. The chunk must not be used
// afterwards; any outstanding slot address becomes dangling.
func (c *chunk) release() error {
	data := c.data
	c.data = nil
	return unix.Munmap(data)
}

// String creates a multi-line string which illustrates the chunk in a
// human-readable format.
func (c *chunk) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "-------------------------------\n")
	fmt.Fprintf(&b, "Chunk Addr: %#x\n", c.base)
	fmt.Fprintf(&b, "Slot Size: %d\n", c.slotSize)
	fmt.Fprintf(&b, "Free Slots: %d/%d\n", c.freeCount, chunkSlots)

	fmt.Fprintf(&b, "Free List:")
	next := c.freeHead
	for i := uint8(0); i < c.freeCount; i++ {
		fmt.Fprintf(&b, " %d", next)
		next = c.data[uintptr(next)*c.slotSize]
	}
	fmt.Fprintf(&b, "\n")

	return b.String()
}
