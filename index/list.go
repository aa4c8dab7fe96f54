package index

import (
	"time"

	"github.com/hupe1980/mmstore/memory"
)

// PostingList is a handle to the posting list of one key. It holds no
// state besides the key; every call reads the current PostingMeta.
type PostingList[K comparable] struct {
	idx *Index[K]
	key K
}

// Key returns the key of the list.
func (pl *PostingList[K]) Key() K { return pl.key }

// Meta returns the current persisted state of the list.
func (pl *PostingList[K]) Meta() PostingMeta {
	b := pl.idx.buckets.FindPtr(pl.key)
	if b == nil {
		return PostingMeta{}
	}

	return b.load()
}

// Size returns the number of postings.
func (pl *PostingList[K]) Size() uint64 { return pl.Meta().Size }

// Exist reports whether id is in the list.
func (pl *PostingList[K]) Exist(id uint64) bool {
	return pl.idx.backend.Exist(pl.idx.postings, pl.Meta(), id)
}

// Iterator returns an iterator over the current ids. It must not be used
// after a later mutation of the list has released its block and the
// allocator delay has elapsed.
func (pl *PostingList[K]) Iterator() (Iterator, error) {
	m := pl.Meta()
	if m.Size == 0 {
		return EmptyIterator{}, nil
	}

	return pl.idx.backend.Iterator(pl.idx.postings, m)
}

// Add inserts p and reports whether it was not present before.
func (pl *PostingList[K]) Add(p Posting) (added bool, err error) {
	err = pl.mutate("add", func(m *PostingMeta) error {
		added, err = pl.idx.backend.Add(pl.idx.postings, m, p)
		return err
	})

	return added, err
}

// Remove deletes id and reports whether it was present.
func (pl *PostingList[K]) Remove(id uint64) (removed bool, err error) {
	err = pl.mutate("remove", func(m *PostingMeta) error {
		removed, err = pl.idx.backend.Remove(pl.idx.postings, m, id)
		return err
	})

	return removed, err
}

// BulkLoad inserts every posting and returns how many were new.
func (pl *PostingList[K]) BulkLoad(ps []Posting) (n int, err error) {
	err = pl.mutate("bulk_load", func(m *PostingMeta) error {
		n, err = pl.idx.backend.BulkLoad(pl.idx.postings, m, ps)
		return err
	})

	return n, err
}

// Search returns the k postings nearest to query. Only vector backends
// support it.
func (pl *PostingList[K]) Search(query []float32, k int) (res []Neighbor, err error) {
	start := time.Now()
	defer func() { pl.idx.observe("search", start, err) }()

	s, ok := pl.idx.backend.(Searcher)
	if !ok {
		return nil, ErrUnsupported
	}

	m := pl.Meta()
	if m.Size == 0 || k <= 0 {
		return nil, nil
	}

	return s.Search(pl.idx.postings, m, query, k)
}

// mutate applies fn to a copy of the meta under the writer lock and writes
// the result back. The meta is written back even when fn fails, since the
// backend may already have moved the list to a new block.
func (pl *PostingList[K]) mutate(op string, fn func(m *PostingMeta) error) (err error) {
	start := time.Now()
	defer func() { pl.idx.observe(op, start, err) }()

	if pl.idx.opts.readOnly {
		return memory.ErrReadOnly
	}

	pl.idx.mu.Lock()
	defer pl.idx.mu.Unlock()

	m := pl.Meta()
	before := m

	err = fn(&m)

	if m != before {
		if b := pl.idx.buckets.FindPtr(pl.key); b != nil {
			b.store(m)
		} else if _, werr := pl.idx.buckets.Emplace(pl.key, bucket{Meta: m}); werr != nil && err == nil {
			err = werr
		}
	}

	if err != nil {
		pl.idx.opts.logger.Warn("posting list update failed", "op", op, "backend", pl.idx.backend.Kind(), "error", err)
	}

	return err
}
