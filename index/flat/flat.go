// Package flat implements a vector posting list backend with exact search.
//
// A list block holds entries of [id uint64][dim float32] sorted by id, each
// padded to 8 bytes. PostingMeta.MaxID is the entry capacity of the block
// and PostingMeta.Aux the dimension. Adding an id that is already present
// replaces its vector.
package flat

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"unsafe"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/distance"
	"github.com/hupe1980/mmstore/index"
	"github.com/hupe1980/mmstore/internal/conv"
)

const minCapacity = 16

// Backend is the flat vector backend.
type Backend struct {
	dim    int
	stride uint64
	metric distance.Metric
	dist   distance.Func
}

var (
	_ index.Backend  = (*Backend)(nil)
	_ index.Searcher = (*Backend)(nil)
)

// New returns a flat backend for vectors of dim dimensions.
func New(dim int, metric distance.Metric) (*Backend, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flat: invalid dimension %d", dim)
	}

	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	return &Backend{
		dim:    dim,
		stride: 8 + conv.AlignUp(uint64(dim)*4, 8),
		metric: metric,
		dist:   fn,
	}, nil
}

// Kind implements index.Backend.
func (*Backend) Kind() index.Kind { return index.KindFlat }

// Dimension returns the vector dimension.
func (b *Backend) Dimension() int { return b.dim }

// Metric returns the distance metric of Search.
func (b *Backend) Metric() distance.Metric { return b.metric }

type entries struct {
	b     *Backend
	block []byte
	n     int
}

func (b *Backend) entries(al alloc.Allocator, m index.PostingMeta) entries {
	e := entries{b: b, n: int(m.Size)}
	if m.Offset != 0 {
		e.block = al.Bytes(m.Offset)[:m.MaxID*b.stride]
	}

	return e
}

func (e entries) entry(i int) []byte {
	off := uint64(i) * e.b.stride
	return e.block[off : off+e.b.stride]
}

func (e entries) id(i int) uint64 { return binary.LittleEndian.Uint64(e.entry(i)) }

func (e entries) vector(i int) []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(&e.entry(i)[8])), e.b.dim)
}

func (e entries) put(i int, p index.Posting) {
	binary.LittleEndian.PutUint64(e.entry(i), p.ID)
	copy(e.vector(i), p.Vector)
}

// search returns the position of id, or where it would be inserted.
func (e entries) search(id uint64) (int, bool) {
	i := sort.Search(e.n, func(i int) bool { return e.id(i) >= id })
	return i, i < e.n && e.id(i) == id
}

func (b *Backend) check(m index.PostingMeta, vec []float32) error {
	if len(vec) != b.dim {
		return fmt.Errorf("%w: vector of dimension %d, want %d", index.ErrInvalidPosting, len(vec), b.dim)
	}

	if m.Aux != 0 && m.Aux != uint64(b.dim) {
		return fmt.Errorf("%w: list holds dimension %d, backend %d", index.ErrInvalidPosting, m.Aux, b.dim)
	}

	return nil
}

// grow moves the list to a block of capacity entries.
func (b *Backend) grow(al alloc.Allocator, m *index.PostingMeta, capacity uint64) error {
	off, err := al.Allocate(capacity * b.stride)
	if err != nil {
		return err
	}

	dst := al.Bytes(off)
	clear(dst)
	copy(dst, b.entries(al, *m).block[:m.Size*b.stride])

	if m.Offset != 0 {
		if err := al.Deallocate(m.Offset); err != nil {
			_ = al.Deallocate(off)
			return err
		}
	}

	m.Offset = off
	m.MaxID = capacity
	m.Aux = uint64(b.dim)

	return nil
}

// Add implements index.Backend.
func (b *Backend) Add(al alloc.Allocator, m *index.PostingMeta, p index.Posting) (bool, error) {
	if err := b.check(*m, p.Vector); err != nil {
		return false, err
	}

	e := b.entries(al, *m)

	i, found := e.search(p.ID)
	if found {
		copy(e.vector(i), p.Vector)
		return false, nil
	}

	if m.Size == m.MaxID {
		if err := b.grow(al, m, max(2*m.MaxID, minCapacity)); err != nil {
			return false, err
		}

		e = b.entries(al, *m)
	}

	start := uint64(i) * b.stride
	end := m.Size * b.stride
	copy(e.block[start+b.stride:], e.block[start:end])
	e.put(i, p)
	m.Size++

	return true, nil
}

// Remove implements index.Backend.
func (b *Backend) Remove(al alloc.Allocator, m *index.PostingMeta, id uint64) (bool, error) {
	e := b.entries(al, *m)

	i, found := e.search(id)
	if !found {
		return false, nil
	}

	start := uint64(i) * b.stride
	end := m.Size * b.stride
	copy(e.block[start:], e.block[start+b.stride:end])
	clear(e.block[end-b.stride : end])
	m.Size--

	return true, nil
}

// Exist implements index.Backend.
func (b *Backend) Exist(al alloc.Allocator, m index.PostingMeta, id uint64) bool {
	_, found := b.entries(al, m).search(id)
	return found
}

// Vector returns the vector stored for id. The slice aliases the block.
func (b *Backend) Vector(al alloc.Allocator, m index.PostingMeta, id uint64) ([]float32, bool) {
	e := b.entries(al, m)

	i, found := e.search(id)
	if !found {
		return nil, false
	}

	return e.vector(i), true
}

// BulkLoad implements index.Backend. Postings are merged with the current
// entries into one new block; for duplicate ids the last posting wins.
func (b *Backend) BulkLoad(al alloc.Allocator, m *index.PostingMeta, ps []index.Posting) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}

	for _, p := range ps {
		if err := b.check(*m, p.Vector); err != nil {
			return 0, err
		}
	}

	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, func(x, y index.Posting) int { return cmp.Compare(x.ID, y.ID) })

	// Keep the last posting of each id.
	uniq := sorted[:0]
	for i, p := range sorted {
		if i+1 < len(sorted) && sorted[i+1].ID == p.ID {
			continue
		}

		uniq = append(uniq, p)
	}

	old := b.entries(al, *m)

	added := 0
	for _, p := range uniq {
		if _, found := old.search(p.ID); !found {
			added++
		}
	}

	total := m.Size + uint64(added)

	next := *m
	next.Offset, next.Size, next.MaxID = 0, 0, 0

	if err := b.grow(al, &next, max(conv.NextPow2(total), minCapacity)); err != nil {
		return 0, err
	}

	dst := b.entries(al, next)

	// Merge the old entries with the new postings.
	i, j, n := 0, 0, 0
	for i < old.n || j < len(uniq) {
		switch {
		case j == len(uniq) || (i < old.n && old.id(i) < uniq[j].ID):
			copy(dst.entry(n), old.entry(i))
			i++
		case i < old.n && old.id(i) == uniq[j].ID:
			dst.put(n, uniq[j])
			i++
			j++
		default:
			dst.put(n, uniq[j])
			j++
		}

		n++
	}

	if m.Offset != 0 {
		if err := al.Deallocate(m.Offset); err != nil {
			_ = al.Deallocate(next.Offset)
			return 0, err
		}
	}

	next.Size = uint64(n)
	*m = next

	return added, nil
}

// Clear implements index.Backend.
func (*Backend) Clear(_ uint64, block []byte) { clear(block) }

// Iterator implements index.Backend.
func (b *Backend) Iterator(al alloc.Allocator, m index.PostingMeta) (index.Iterator, error) {
	e := b.entries(al, m)
	return index.NewSortedIterator(e.n, e.id), nil
}

// Search implements index.Searcher with an exhaustive scan. Results are
// ordered by distance, ties by id.
func (b *Backend) Search(al alloc.Allocator, m index.PostingMeta, query []float32, k int) ([]index.Neighbor, error) {
	if len(query) != b.dim {
		return nil, fmt.Errorf("%w: query of dimension %d, want %d", index.ErrInvalidPosting, len(query), b.dim)
	}

	e := b.entries(al, m)

	res := make([]index.Neighbor, e.n)
	for i := range e.n {
		res[i] = index.Neighbor{ID: e.id(i), Distance: b.dist(query, e.vector(i))}
	}

	slices.SortFunc(res, func(x, y index.Neighbor) int {
		if c := cmp.Compare(x.Distance, y.Distance); c != 0 {
			return c
		}

		return cmp.Compare(x.ID, y.ID)
	})

	if len(res) > k {
		res = res[:k]
	}

	return res, nil
}
