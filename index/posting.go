package index

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/mmstore/alloc"
)

var (
	// ErrUnsupported is returned for operations a backend does not implement.
	ErrUnsupported = errors.New("index: operation not supported by backend")
	// ErrBackendMismatch is returned when a stored index was built with
	// another backend or schema binding.
	ErrBackendMismatch = errors.New("index: backend mismatch")
	// ErrInvalidPosting is returned for postings a backend cannot store.
	ErrInvalidPosting = errors.New("index: invalid posting")
)

// PostingMeta is the persisted state of one posting list.
type PostingMeta struct {
	// Size is the number of postings.
	Size uint64
	// Offset is the posting block in the posting allocator, 0 if none.
	Offset uint64
	// MaxID is the exclusive id bound (bitmap), the highest id plus one
	// (roaring) or the entry capacity (flat) of the block.
	MaxID uint64
	// Aux is backend specific.
	Aux uint64
}

// Posting is one entry of a posting list.
type Posting struct {
	ID     uint64
	Vector []float32
}

// Neighbor is a search result.
type Neighbor struct {
	ID       uint64
	Distance float32
}

// Kind names a backend.
type Kind uint8

const (
	KindBitmap Kind = iota + 1
	KindRoaring
	KindFlat
)

var kindNames = map[Kind]string{
	KindBitmap:  "bitmap",
	KindRoaring: "roaring",
	KindFlat:    "flat",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}

	return 0, fmt.Errorf("index: unknown backend %q", s)
}

// Iterator scans the ids of a posting list in ascending order. The
// positioning methods report whether the iterator is valid afterwards.
type Iterator interface {
	// SeekFirst positions at the smallest id.
	SeekFirst() bool
	// SeekLast positions at the largest id.
	SeekLast() bool
	// SeekTo positions at the smallest id >= id.
	SeekTo(id uint64) bool
	Next() bool
	Prev() bool
	Valid() bool
	// ID returns the current id. It must only be called while Valid.
	ID() uint64
}

// Backend implements posting lists on top of allocator blocks. Methods that
// take *PostingMeta update it in place; the caller persists it.
type Backend interface {
	Kind() Kind

	// Add inserts p and reports whether it was not present before.
	Add(al alloc.Allocator, m *PostingMeta, p Posting) (bool, error)
	// Remove deletes id and reports whether it was present.
	Remove(al alloc.Allocator, m *PostingMeta, id uint64) (bool, error)
	Exist(al alloc.Allocator, m PostingMeta, id uint64) bool
	Iterator(al alloc.Allocator, m PostingMeta) (Iterator, error)
	// BulkLoad inserts every posting, growing the block at most once. It
	// returns the number of postings that were not present before.
	BulkLoad(al alloc.Allocator, m *PostingMeta, ps []Posting) (int, error)

	// Clear is the reclaim hook of the posting allocator. It runs when a
	// released block leaves the delay queue.
	Clear(off uint64, block []byte)
}

// Searcher is implemented by backends that store vectors.
type Searcher interface {
	Search(al alloc.Allocator, m PostingMeta, query []float32, k int) ([]Neighbor, error)
}

// EmptyIterator is the iterator of a list without postings.
type EmptyIterator struct{}

func (EmptyIterator) SeekFirst() bool { return false }
func (EmptyIterator) SeekLast() bool { return false }
func (EmptyIterator) SeekTo(uint64) bool { return false }
func (EmptyIterator) Next() bool { return false }
func (EmptyIterator) Prev() bool { return false }
func (EmptyIterator) Valid() bool { return false }
func (EmptyIterator) ID() uint64 { return 0 }

// Collect drains it from the first id and returns every id.
func Collect(it Iterator) []uint64 {
	var ids []uint64
	for ok := it.SeekFirst(); ok; ok = it.Next() {
		ids = append(ids, it.ID())
	}

	return ids
}
