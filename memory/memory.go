package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

// Kind identifies the backing store of a Memory.
type Kind uint8

const (
	// KindHeap is an ephemeral anonymous mapping.
	KindHeap Kind = iota + 1
	// KindMMap is a file-backed shared mapping.
	KindMMap
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindMMap:
		return "mmap"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "heap":
		return KindHeap, nil
	case "mmap":
		return KindMMap, nil
	default:
		return 0, fmt.Errorf("memory: unknown kind %q", s)
	}
}

const (
	// StartOffset is the initial high-water mark of a region. Offset 0 is null.
	StartOffset = 1
	// Alignment is the alignment of every offset returned by Allocate.
	Alignment = 8
)

var (
	// ErrReadOnly is returned when mutating a read-only region. It indicates
	// a programming error and is never retryable.
	ErrReadOnly = errors.New("memory: region is read-only")
	// ErrOutOfSpace is returned when a region cannot grow to fit an allocation.
	ErrOutOfSpace = errors.New("memory: out of space")
	// ErrClosed is returned when using a closed region.
	ErrClosed = errors.New("memory: region is closed")
	// ErrCorruptMeta is returned when the sidecar metadata does not match the data file.
	ErrCorruptMeta = errors.New("memory: corrupt metadata")
)

// Memory is a growable byte-addressable region handing out stable offsets.
type Memory interface {
	// Kind reports the backing store.
	Kind() Kind

	// Allocate bumps the high-water mark by size bytes (after aligning it) and
	// returns the offset of the new range. On failure it returns 0 and an
	// error; it never allocates partially.
	Allocate(size uint64) (uint64, error)

	// Bytes returns the n bytes starting at off. The slice aliases the region.
	Bytes(off, n uint64) []byte

	// Pointer returns the address of off. It is valid until Close.
	Pointer(off uint64) unsafe.Pointer

	// Allocated returns the high-water mark.
	Allocated() uint64

	// Capacity returns the number of bytes currently backed by storage.
	Capacity() uint64

	// ReadOnly reports whether the region rejects mutation.
	ReadOnly() bool

	// Reset sets the high-water mark back to StartOffset and zeroes the
	// previously allocated bytes.
	Reset() error

	// Dump persists the region metadata.
	Dump() error

	// Close releases the region. It does not dump.
	Close() error
}

// Meta is the persisted descriptor of a region.
type Meta struct {
	Type      string `json:"type"`
	Allocated uint64 `json:"allocated"`
	Capacity  uint64 `json:"capacity"`
	Codec     string `json:"codec,omitempty"`
}

// Empty reports whether nothing beyond the start offset was ever allocated.
func Empty(m Memory) bool {
	return m.Allocated() <= StartOffset
}

// FirstOffset is the offset returned by the first Allocate on a fresh region.
const FirstOffset = (StartOffset + Alignment - 1) &^ (Alignment - 1)
