package alloc

import (
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/hupe1980/mmstore/memory"
)

const recycledMagic = 0x6d6d7263796c3031 // "mmrcyl01"

// recycledMeta is the persisted state of a Recycled allocator. It lives at
// memory.FirstOffset of the region.
type recycledMeta struct {
	Magic          uint64
	MinMemSize     uint64
	MaxMemSize     uint64
	Rate           uint64 // float64 bits
	ExpandFactor   uint64 // float64 bits
	DelayTime      int64
	DelayQueueSize uint64
	Levels         uint64
	Stacks         uint64 // offset of Levels free-stack heads
	Queue          uint64 // offset of the delay-queue ring
	QueueCap       uint64
	QueueHead      uint64
	QueueLen       uint64
}

// delayEntry is one slot of the delay-queue ring.
type delayEntry struct {
	Off     uint64
	Level   uint64
	FreedAt int64
}

var (
	metaSize  = uint64(unsafe.Sizeof(recycledMeta{}))
	entrySize = uint64(unsafe.Sizeof(delayEntry{}))
)

var _ Allocator = (*Recycled)(nil)

// Recycled is a size-classed allocator with delayed reuse.
type Recycled struct {
	blocks

	opts  options
	cfg   Config
	sizes []uint64

	mu   sync.Mutex
	meta *recycledMeta
}

// NewRecycled attaches a recycled allocator to mem.
//
// On an empty region the allocator is initialized from cfg and its meta
// block is placed at memory.FirstOffset. On a non-empty region the persisted
// meta is trusted and cfg is ignored.
func NewRecycled(mem memory.Memory, cfg Config, optFns ...Option) (*Recycled, error) {
	r := &Recycled{
		blocks: blocks{mem: mem},
		opts:   applyOptions(optFns),
	}

	if memory.Empty(mem) {
		if err := r.init(cfg); err != nil {
			return nil, err
		}

		return r, nil
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Recycled) init(cfg Config) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	if r.mem.ReadOnly() {
		return fmt.Errorf("alloc: initialize recycled allocator: %w", memory.ErrReadOnly)
	}

	metaOff, err := r.mem.Allocate(metaSize)
	if err != nil {
		return fmt.Errorf("alloc: allocate meta block: %w", err)
	}

	if metaOff != memory.FirstOffset {
		return fmt.Errorf("%w: meta block at %d", ErrCorruptMeta, metaOff)
	}

	sizes := cfg.levels()

	stacks, err := r.mem.Allocate(uint64(len(sizes)) * 8)
	if err != nil {
		return fmt.Errorf("alloc: allocate free stacks: %w", err)
	}

	queue, err := r.mem.Allocate(cfg.DelayQueueSize * entrySize)
	if err != nil {
		return fmt.Errorf("alloc: allocate delay queue: %w", err)
	}

	r.cfg = cfg
	r.sizes = sizes
	r.meta = (*recycledMeta)(r.mem.Pointer(metaOff))
	*r.meta = recycledMeta{
		Magic:          recycledMagic,
		MinMemSize:     cfg.MinMemSize,
		MaxMemSize:     cfg.MaxMemSize,
		Rate:           math.Float64bits(cfg.Rate),
		ExpandFactor:   math.Float64bits(cfg.ExpandFactor),
		DelayTime:      int64(cfg.DelayTime),
		DelayQueueSize: cfg.DelayQueueSize,
		Levels:         uint64(len(sizes)),
		Stacks:         stacks,
		Queue:          queue,
		QueueCap:       cfg.DelayQueueSize,
	}

	r.opts.logger.Debug("recycled allocator initialized",
		"component", r.opts.name,
		"levels", len(sizes),
		"min_mem_size", cfg.MinMemSize,
		"max_mem_size", cfg.MaxMemSize,
	)

	return nil
}

func (r *Recycled) load() error {
	if r.mem.Allocated() < memory.FirstOffset+metaSize {
		return fmt.Errorf("%w: region too small", ErrCorruptMeta)
	}

	meta := (*recycledMeta)(r.mem.Pointer(memory.FirstOffset))
	if meta.Magic != recycledMagic {
		return fmt.Errorf("%w: bad magic %#x", ErrCorruptMeta, meta.Magic)
	}

	cfg := Config{
		MinMemSize:     meta.MinMemSize,
		MaxMemSize:     meta.MaxMemSize,
		Rate:           math.Float64frombits(meta.Rate),
		ExpandFactor:   math.Float64frombits(meta.ExpandFactor),
		DelayTime:      time.Duration(meta.DelayTime),
		DelayQueueSize: meta.DelayQueueSize,
	}

	cfg, err := cfg.normalize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}

	sizes := cfg.levels()
	if uint64(len(sizes)) != meta.Levels {
		return fmt.Errorf("%w: %d levels persisted, %d computed", ErrCorruptMeta, meta.Levels, len(sizes))
	}

	if meta.QueueLen > meta.QueueCap || (meta.QueueCap > 0 && meta.QueueHead >= meta.QueueCap) {
		return fmt.Errorf("%w: delay queue head=%d len=%d cap=%d", ErrCorruptMeta, meta.QueueHead, meta.QueueLen, meta.QueueCap)
	}

	r.cfg = cfg
	r.sizes = sizes
	r.meta = meta

	r.opts.logger.Debug("recycled allocator loaded",
		"component", r.opts.name,
		"levels", len(sizes),
		"delayed", meta.QueueLen,
	)

	return nil
}

// Config returns the effective configuration.
func (r *Recycled) Config() Config { return r.cfg }

// Levels returns the number of size classes.
func (r *Recycled) Levels() int { return len(r.sizes) }

// LevelSize returns the block size of level l.
func (r *Recycled) LevelSize(l int) uint64 { return r.sizes[l] }

// LevelOf returns the size class serving a request of size bytes.
func (r *Recycled) LevelOf(size uint64) (int, error) {
	l, ok := levelOf(r.sizes, size)
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, r.cfg.MaxMemSize)
	}

	return l, nil
}

// upperLevel returns the largest level acceptable for a request of size bytes.
func (r *Recycled) upperLevel(size uint64) int {
	expanded := float64(size) * r.cfg.ExpandFactor
	if expanded >= float64(r.cfg.MaxMemSize) {
		return len(r.sizes) - 1
	}

	l, _ := levelOf(r.sizes, uint64(expanded))

	return l
}

func (r *Recycled) stacks() []uint64 {
	return unsafe.Slice((*uint64)(r.mem.Pointer(r.meta.Stacks)), r.meta.Levels)
}

func (r *Recycled) queue() []delayEntry {
	return unsafe.Slice((*delayEntry)(r.mem.Pointer(r.meta.Queue)), r.meta.QueueCap)
}

// Allocate returns a zeroed block of at least size bytes. Free blocks of
// levels LevelOf(size) up to LevelOf(size*ExpandFactor) are reused before
// fresh memory is carved.
func (r *Recycled) Allocate(size uint64) (uint64, error) {
	if r.mem.ReadOnly() {
		return 0, memory.ErrReadOnly
	}

	lvl, err := r.LevelOf(size)
	if err != nil {
		r.opts.logger.Warn("recycled allocation failed", "component", r.opts.name, "size", size, "error", err)
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.drain()

	stacks := r.stacks()
	upper := r.upperLevel(size)

	for l := lvl; l <= upper; l++ {
		off := stacks[l]
		if off == 0 {
			continue
		}

		stacks[l] = *(*uint64)(r.mem.Pointer(off))
		clear(r.Bytes(off))
		r.opts.metrics.RecordAlloc(r.opts.name, r.sizes[l], true)

		return off, nil
	}

	off, err := r.carve(r.sizes[lvl])
	if err != nil {
		r.opts.logger.Warn("recycled allocation failed",
			"component", r.opts.name,
			"size", size,
			"level", lvl,
			"error", err,
		)

		return 0, err
	}

	r.opts.metrics.RecordAlloc(r.opts.name, r.sizes[lvl], false)

	return off, nil
}

// Deallocate puts the block at off into the delay queue. It becomes
// reusable once Config.DelayTime has elapsed.
func (r *Recycled) Deallocate(off uint64) error {
	if off == 0 || r.Borrowed(off) {
		return nil
	}

	return r.release(off)
}

// Release deallocates the block at off even if it is borrowed.
func (r *Recycled) Release(off uint64) error {
	if off == 0 {
		return nil
	}

	return r.release(off)
}

func (r *Recycled) release(off uint64) error {
	if r.mem.ReadOnly() {
		return memory.ErrReadOnly
	}

	size := r.Size(off)

	lvl, ok := levelOf(r.sizes, size)
	if !ok || r.sizes[lvl] != size {
		return fmt.Errorf("%w: block %d has size %d outside the size classes", ErrCorruptMeta, off, size)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.drain()

	if r.meta.QueueLen == r.meta.QueueCap {
		if err := r.growQueue(); err != nil {
			r.opts.logger.Warn("delay queue growth failed", "component", r.opts.name, "error", err)
			return err
		}
	}

	// Clear the borrowed flag so the block is handed out clean.
	*r.header(off) = EncodeHeader(size, false)

	q := r.queue()
	q[(r.meta.QueueHead+r.meta.QueueLen)%r.meta.QueueCap] = delayEntry{
		Off:     off,
		Level:   uint64(lvl),
		FreedAt: r.opts.clock.Now().UnixNano(),
	}
	r.meta.QueueLen++

	r.opts.metrics.RecordFree(r.opts.name, size)

	return nil
}

// drain moves every due entry of the delay queue onto its free stack. It
// must be called with mu held.
func (r *Recycled) drain() {
	if r.meta.QueueLen == 0 {
		return
	}

	now := r.opts.clock.Now().UnixNano()
	delay := int64(r.cfg.DelayTime)
	q := r.queue()
	stacks := r.stacks()

	for r.meta.QueueLen > 0 {
		e := q[r.meta.QueueHead]
		if now-e.FreedAt < delay {
			return
		}

		if r.opts.reclaim != nil {
			r.opts.reclaim(e.Off, r.Bytes(e.Off))
		}

		*(*uint64)(r.mem.Pointer(e.Off)) = stacks[e.Level]
		stacks[e.Level] = e.Off

		q[r.meta.QueueHead] = delayEntry{}
		r.meta.QueueHead = (r.meta.QueueHead + 1) % r.meta.QueueCap
		r.meta.QueueLen--
	}
}

// growQueue doubles the ring. The old ring stays allocated in the region. It
// must be called with mu held.
func (r *Recycled) growQueue() error {
	newCap := r.meta.QueueCap * 2

	off, err := r.mem.Allocate(newCap * entrySize)
	if err != nil {
		return fmt.Errorf("alloc: grow delay queue: %w", err)
	}

	old := r.queue()
	next := unsafe.Slice((*delayEntry)(r.mem.Pointer(off)), newCap)

	for i := range r.meta.QueueLen {
		next[i] = old[(r.meta.QueueHead+i)%r.meta.QueueCap]
	}

	r.meta.Queue = off
	r.meta.QueueCap = newCap
	r.meta.QueueHead = 0

	r.opts.logger.Debug("delay queue grown", "component", r.opts.name, "capacity", newCap)

	return nil
}

// Dump persists the underlying region, including the meta block.
func (r *Recycled) Dump() error {
	return r.mem.Dump()
}

// Stats describes the free memory held by a Recycled allocator.
type Stats struct {
	Levels       int
	FreeBlocks   uint64
	FreeBytes    uint64
	Delayed      uint64
	DelayedBytes uint64
}

// Stats walks the free stacks and the delay queue.
func (r *Recycled) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Levels: len(r.sizes)}

	for l, head := range r.stacks() {
		for off := head; off != 0; off = *(*uint64)(r.mem.Pointer(off)) {
			s.FreeBlocks++
			s.FreeBytes += r.sizes[l]
		}
	}

	q := r.queue()
	for i := range r.meta.QueueLen {
		e := q[(r.meta.QueueHead+i)%r.meta.QueueCap]
		s.Delayed++
		s.DelayedBytes += r.sizes[e.Level]
	}

	return s
}
