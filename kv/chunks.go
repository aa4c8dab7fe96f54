package kv

import (
	"fmt"
	"unsafe"

	"github.com/hupe1980/mmstore/internal/conv"
	"github.com/hupe1980/mmstore/memory"
)

const chunksMagic = 0x6d6d63686e6b7331 // "mmchnks1"

// minChunkGrowth is the smallest number of chunks added on growth.
const minChunkGrowth = 64

type chunksHeader struct {
	Magic     uint64
	ChunkSize uint64
	Chunks    uint64
	Base      uint64 // offset of chunk 0
}

// FixedChunkMap is a growable array of fixed-size buffers stored
// contiguously in a memory region and addressed by id.
type FixedChunkMap struct {
	mem memory.Memory
	hdr *chunksHeader
}

// NewFixedChunkMap creates a chunk array with chunks of chunkSize bytes in
// mem, or attaches to the one stored there.
func NewFixedChunkMap(mem memory.Memory, chunkSize uint64) (*FixedChunkMap, error) {
	hdrSize := uint64(unsafe.Sizeof(chunksHeader{}))

	if !memory.Empty(mem) {
		if mem.Allocated() < memory.FirstOffset+hdrSize {
			return nil, fmt.Errorf("%w: chunk region too small", ErrCorrupt)
		}

		hdr := (*chunksHeader)(mem.Pointer(memory.FirstOffset))

		switch {
		case hdr.Magic != chunksMagic:
			return nil, fmt.Errorf("%w: chunk header", ErrCorrupt)
		case hdr.ChunkSize != chunkSize:
			return nil, fmt.Errorf("%w: chunk size %d, schema needs %d", ErrCorrupt, hdr.ChunkSize, chunkSize)
		case hdr.Base+hdr.Chunks*hdr.ChunkSize > mem.Allocated():
			return nil, fmt.Errorf("%w: %d chunks exceed region", ErrCorrupt, hdr.Chunks)
		}

		return &FixedChunkMap{mem: mem, hdr: hdr}, nil
	}

	if chunkSize == 0 || chunkSize%8 != 0 {
		return nil, fmt.Errorf("kv: chunk size %d is not a positive multiple of 8", chunkSize)
	}

	off, err := mem.Allocate(hdrSize)
	if err != nil {
		return nil, fmt.Errorf("kv: allocate chunk header: %w", err)
	}

	hdr := (*chunksHeader)(mem.Pointer(off))
	hdr.Magic = chunksMagic
	hdr.ChunkSize = chunkSize
	hdr.Base = conv.AlignUp(off+hdrSize, memory.Alignment)

	return &FixedChunkMap{mem: mem, hdr: hdr}, nil
}

// Len returns the number of chunks.
func (m *FixedChunkMap) Len() uint64 { return m.hdr.Chunks }

// ChunkSize returns the size of one chunk.
func (m *FixedChunkMap) ChunkSize() uint64 { return m.hdr.ChunkSize }

// Get returns the chunk of id, or nil if id is beyond Len.
func (m *FixedChunkMap) Get(id uint64) []byte {
	if id >= m.hdr.Chunks {
		return nil
	}

	return m.mem.Bytes(m.hdr.Base+id*m.hdr.ChunkSize, m.hdr.ChunkSize)
}

// Ensure grows the array so that chunk id exists. New chunks are zeroed.
func (m *FixedChunkMap) Ensure(id uint64) error {
	if id < m.hdr.Chunks {
		return nil
	}

	if m.mem.ReadOnly() {
		return memory.ErrReadOnly
	}

	grow := max(id+1-m.hdr.Chunks, m.hdr.Chunks, minChunkGrowth)

	off, err := m.mem.Allocate(grow * m.hdr.ChunkSize)
	if err != nil {
		return fmt.Errorf("kv: grow chunks to %d: %w", m.hdr.Chunks+grow, err)
	}

	if off != m.hdr.Base+m.hdr.Chunks*m.hdr.ChunkSize {
		return fmt.Errorf("%w: chunk region is not contiguous", ErrCorrupt)
	}

	m.hdr.Chunks += grow

	return nil
}
