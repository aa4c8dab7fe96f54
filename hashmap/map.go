package hashmap

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/mmstore/internal/conv"
	"github.com/hupe1980/mmstore/memory"
)

const mapMagic = 0x6d6d686d61703031 // "mmhmap01"

// Slot states, stored in the low two bits of headAndState.
const (
	stateEmpty        = 0
	stateConstructing = 1
	stateLinked       = 2

	stateMask = 3
)

// maxSlots keeps slot indexes within the 30 bits left next to the state.
const maxSlots = 1 << 30

var (
	// ErrFull is returned when no free slot is left. The map never grows, so
	// this is a capacity-planning error.
	ErrFull = errors.New("hashmap: no free slot")
	// ErrInvalidType is returned for key or value types that contain pointers.
	ErrInvalidType = errors.New("hashmap: invalid key or value type")
	// ErrInvalidSize is returned for a capacity that cannot be represented.
	ErrInvalidSize = errors.New("hashmap: invalid size")
	// ErrCorruptHeader is returned when reattaching to a region that does not
	// hold a map of the same shape.
	ErrCorruptHeader = errors.New("hashmap: corrupt header")
)

type header struct {
	Magic    uint64
	NumSlots uint64
	SlotMask uint64
	SlotSize uint64
	Slots    uint64 // offset of the slot array
	Count    atomic.Uint64
}

// slot stores the head of the chain rooted here (bits 2..31) and the state
// of this slot (bits 0..1) in a single word.
type slot[K comparable, V any] struct {
	headAndState atomic.Uint32
	next         uint32
	key          K
	value        V
}

func (s *slot[K, V]) state() uint32 { return s.headAndState.Load() & stateMask }

// Map is a fixed-capacity, insert-only, lock-free hash map.
type Map[K comparable, V any] struct {
	opts  options[K]
	mem   memory.Memory
	hdr   *header
	slots []slot[K, V]
}

// New creates a map for up to maxSize entries inside mem, or reattaches to
// the map already stored there. When reattaching, maxSize is ignored.
func New[K comparable, V any](mem memory.Memory, maxSize uint64, optFns ...Option[K]) (*Map[K, V], error) {
	var (
		k K
		v V
	)

	if err := checkPlain(reflect.TypeOf(k), true); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrInvalidType, err)
	}

	if err := checkPlain(reflect.TypeOf(v), false); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidType, err)
	}

	m := &Map[K, V]{
		opts: applyOptions(optFns),
		mem:  mem,
	}

	if m.opts.hasher == nil {
		m.opts.hasher = hashBytes[K]
	}

	if memory.Empty(mem) {
		if err := m.init(maxSize); err != nil {
			return nil, err
		}

		return m, nil
	}

	if err := m.attach(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Map[K, V]) init(maxSize uint64) error {
	if m.mem.ReadOnly() {
		return fmt.Errorf("hashmap: initialize: %w", memory.ErrReadOnly)
	}

	numSlots := uint64(float64(maxSize)/m.opts.loadFactor) + 128
	if numSlots > maxSlots {
		return fmt.Errorf("%w: %d slots exceed %d", ErrInvalidSize, numSlots, maxSlots)
	}

	slotSize := uint64(unsafe.Sizeof(slot[K, V]{}))

	hdrOff, err := m.mem.Allocate(uint64(unsafe.Sizeof(header{})))
	if err != nil {
		return fmt.Errorf("hashmap: allocate header: %w", err)
	}

	if hdrOff != memory.FirstOffset {
		return fmt.Errorf("%w: header at %d", ErrCorruptHeader, hdrOff)
	}

	slotsOff, err := m.mem.Allocate(numSlots * slotSize)
	if err != nil {
		return fmt.Errorf("hashmap: allocate %d slots: %w", numSlots, err)
	}

	m.hdr = (*header)(m.mem.Pointer(hdrOff))
	m.hdr.Magic = mapMagic
	m.hdr.NumSlots = numSlots
	m.hdr.SlotMask = conv.NextPow2(numSlots*4) - 1
	m.hdr.SlotSize = slotSize
	m.hdr.Slots = slotsOff
	m.slots = unsafe.Slice((*slot[K, V])(m.mem.Pointer(slotsOff)), numSlots)

	m.opts.logger.Debug("hashmap initialized", "max_size", maxSize, "slots", numSlots)

	return nil
}

func (m *Map[K, V]) attach() error {
	hdrSize := uint64(unsafe.Sizeof(header{}))
	if m.mem.Allocated() < memory.FirstOffset+hdrSize {
		return fmt.Errorf("%w: region too small", ErrCorruptHeader)
	}

	hdr := (*header)(m.mem.Pointer(memory.FirstOffset))

	switch {
	case hdr.Magic != mapMagic:
		return fmt.Errorf("%w: bad magic %#x", ErrCorruptHeader, hdr.Magic)
	case hdr.SlotSize != uint64(unsafe.Sizeof(slot[K, V]{})):
		return fmt.Errorf("%w: slot size %d, want %d", ErrCorruptHeader, hdr.SlotSize, unsafe.Sizeof(slot[K, V]{}))
	case hdr.NumSlots > maxSlots || hdr.Slots+hdr.NumSlots*hdr.SlotSize > m.mem.Allocated():
		return fmt.Errorf("%w: %d slots at %d", ErrCorruptHeader, hdr.NumSlots, hdr.Slots)
	}

	m.hdr = hdr
	m.slots = unsafe.Slice((*slot[K, V])(m.mem.Pointer(hdr.Slots)), hdr.NumSlots)

	m.opts.logger.Debug("hashmap attached", "slots", hdr.NumSlots, "len", hdr.Count.Load())

	return nil
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return int(m.hdr.Count.Load()) }

// Capacity returns the number of slots.
func (m *Map[K, V]) Capacity() int { return int(m.hdr.NumSlots) }

// Memory returns the region holding the map.
func (m *Map[K, V]) Memory() memory.Memory { return m.mem }

func (m *Map[K, V]) home(key K) uint32 {
	h := m.opts.hasher(key) & m.hdr.SlotMask
	for h >= m.hdr.NumSlots {
		h -= m.hdr.NumSlots
	}

	return uint32(h)
}

// find walks the chain rooted at home.
func (m *Map[K, V]) find(key K, home uint32) uint32 {
	hs := m.slots[home].headAndState.Load()
	for idx := hs >> 2; idx != 0; idx = m.slots[idx].next {
		if m.slots[idx].key == key {
			return idx
		}
	}

	return 0
}

// FindOrConstruct returns the value stored under key. If key is absent, a
// new entry is claimed, init is run on its zeroed value and the entry is
// published. The boolean reports whether this call inserted the entry.
//
// When several goroutines race to insert the same key, exactly one wins; the
// losers' entries are discarded and they return the winner's value.
func (m *Map[K, V]) FindOrConstruct(key K, init func(*V)) (*V, bool, error) {
	if m.mem.ReadOnly() {
		return nil, false, memory.ErrReadOnly
	}

	home := m.home(key)
	prev := m.slots[home].headAndState.Load()

	if idx := m.find(key, home); idx != 0 {
		return &m.slots[idx].value, false, nil
	}

	idx, err := m.allocateNear(home)
	if err != nil {
		m.opts.logger.Warn("hashmap full", "slots", m.hdr.NumSlots, "len", m.hdr.Count.Load())
		return nil, false, err
	}

	s := &m.slots[idx]
	s.key = key

	var zero V
	s.value = zero

	if init != nil {
		init(&s.value)
	}

	for {
		s.next = prev >> 2

		// Publishing and CONSTRUCTING -> LINKED merge into one CAS when the
		// entry landed in its home slot.
		after := idx << 2
		if idx == home {
			after |= stateLinked
		} else {
			after |= prev & stateMask
		}

		if m.slots[home].headAndState.CompareAndSwap(prev, after) {
			if idx != home {
				s.headAndState.Add(stateLinked - stateConstructing)
			}

			m.hdr.Count.Add(1)

			return &s.value, true, nil
		}

		prev = m.slots[home].headAndState.Load()

		if existing := m.find(key, home); existing != 0 {
			var zeroKey K
			s.key = zeroKey
			s.value = zero
			// CONSTRUCTING -> EMPTY, keeping the chain head bits.
			s.headAndState.Add(^uint32(0))

			return &m.slots[existing].value, false, nil
		}
	}
}

// allocateNear claims an empty slot, preferring the neighbourhood of start.
// Slot 0 is never handed out since index 0 terminates chains.
func (m *Map[K, V]) allocateNear(start uint32) (uint32, error) {
	n := uint32(m.hdr.NumSlots)

	try := func(idx uint32) bool {
		if idx == 0 || idx >= n {
			return false
		}

		prev := m.slots[idx].headAndState.Load()

		return prev&stateMask == stateEmpty &&
			m.slots[idx].headAndState.CompareAndSwap(prev, prev+stateConstructing-stateEmpty)
	}

	for i := range uint32(8) {
		if try(start + i) {
			return start + i, nil
		}
	}

	for range 8 {
		if idx := rand.Uint32N(n); try(idx) {
			return idx, nil
		}
	}

	for i := range n {
		if idx := (start + i) % n; try(idx) {
			return idx, nil
		}
	}

	return 0, ErrFull
}

// Emplace inserts value under key if key is absent. It reports whether the
// entry was inserted; an existing value is left untouched.
func (m *Map[K, V]) Emplace(key K, value V) (bool, error) {
	_, inserted, err := m.FindOrConstruct(key, func(v *V) { *v = value })
	return inserted, err
}

// Upsert inserts value under key or overwrites the existing value in place.
func (m *Map[K, V]) Upsert(key K, value V) error {
	p, inserted, err := m.FindOrConstruct(key, func(v *V) { *v = value })
	if err != nil {
		return err
	}

	if !inserted {
		*p = value
	}

	return nil
}

// Find returns the value stored under key.
func (m *Map[K, V]) Find(key K) (V, bool) {
	if idx := m.find(key, m.home(key)); idx != 0 {
		return m.slots[idx].value, true
	}

	var zero V

	return zero, false
}

// FindPtr returns a pointer to the value stored under key, or nil. The
// pointer stays valid for the lifetime of the map; writes through it must
// come from the single writer.
func (m *Map[K, V]) FindPtr(key K) *V {
	if idx := m.find(key, m.home(key)); idx != 0 {
		return &m.slots[idx].value
	}

	return nil
}

// Range calls fn for every published entry until fn returns false. Entries
// inserted concurrently may or may not be visited.
func (m *Map[K, V]) Range(fn func(key K, value *V) bool) {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.state() != stateLinked {
			continue
		}

		if !fn(s.key, &s.value) {
			return
		}
	}
}

// Dump persists the underlying region.
func (m *Map[K, V]) Dump() error {
	return m.mem.Dump()
}

func hashBytes[K comparable](key K) uint64 {
	b := unsafe.Slice((*byte)(unsafe.Pointer(&key)), unsafe.Sizeof(key))
	return xxhash.Sum64(b)
}
