package alloc

import (
	"errors"
	"unsafe"
)

// HeaderSize is the size of the header preceding every block.
const HeaderSize = 8

const (
	borrowedBit = uint64(1) << 63
	lengthMask  = uint64(1)<<56 - 1

	// MaxLength is the largest length a header can encode.
	MaxLength = lengthMask
)

var (
	// ErrTooLarge is returned when a request exceeds the largest size class.
	ErrTooLarge = errors.New("alloc: allocation too large")
	// ErrInvalidConfig is returned for an unusable allocator configuration.
	ErrInvalidConfig = errors.New("alloc: invalid config")
	// ErrCorruptMeta is returned when a persisted allocator meta block cannot be read.
	ErrCorruptMeta = errors.New("alloc: corrupt meta block")
)

// Allocator hands out offsets of blocks that stay valid until deallocated.
type Allocator interface {
	// Allocate returns the offset of a zeroed block of at least size bytes.
	// On failure it returns 0 and an error.
	Allocate(size uint64) (uint64, error)

	// Deallocate releases the block at off. Deallocating 0 or a borrowed
	// block is a no-op.
	Deallocate(off uint64) error

	// Bytes returns the block at off, as long as its stored length.
	Bytes(off uint64) []byte

	// Size returns the stored length of the block at off.
	Size(off uint64) uint64

	// Pointer returns the address of the block at off.
	Pointer(off uint64) unsafe.Pointer

	// Borrowed reports whether the block at off is owned by another structure.
	Borrowed(off uint64) bool

	// SetBorrowed marks the block at off as owned by another structure, which
	// makes Deallocate ignore it.
	SetBorrowed(off uint64, borrowed bool)

	// Dump persists the allocator state together with its memory.
	Dump() error
}

// EncodeHeader packs a block length and the borrowed flag.
func EncodeHeader(length uint64, borrowed bool) uint64 {
	h := length & lengthMask
	if borrowed {
		h |= borrowedBit
	}

	return h
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(h uint64) (length uint64, borrowed bool) {
	return h & lengthMask, h&borrowedBit != 0
}

func headerAt(p unsafe.Pointer) *uint64 {
	return (*uint64)(p)
}
