package index

import "sort"

// SortedIterator iterates n ascending ids addressed by position.
type SortedIterator struct {
	n   int
	at  func(i int) uint64
	pos int
}

// NewSortedIterator returns an iterator over the ids at(0) < ... < at(n-1).
func NewSortedIterator(n int, at func(i int) uint64) *SortedIterator {
	return &SortedIterator{n: n, at: at, pos: -1}
}

// NewSliceIterator returns an iterator over the ascending ids.
func NewSliceIterator(ids []uint64) *SortedIterator {
	return NewSortedIterator(len(ids), func(i int) uint64 { return ids[i] })
}

func (it *SortedIterator) set(pos int) bool {
	if pos < 0 || pos >= it.n {
		it.pos = -1
		return false
	}

	it.pos = pos

	return true
}

func (it *SortedIterator) SeekFirst() bool { return it.set(0) }

func (it *SortedIterator) SeekLast() bool { return it.set(it.n - 1) }

func (it *SortedIterator) SeekTo(id uint64) bool {
	return it.set(sort.Search(it.n, func(i int) bool { return it.at(i) >= id }))
}

func (it *SortedIterator) Next() bool {
	if !it.Valid() {
		return false
	}

	return it.set(it.pos + 1)
}

func (it *SortedIterator) Prev() bool {
	if !it.Valid() {
		return false
	}

	return it.set(it.pos - 1)
}

func (it *SortedIterator) Valid() bool { return it.pos >= 0 }

func (it *SortedIterator) ID() uint64 { return it.at(it.pos) }
