package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/codec"
	"github.com/hupe1980/mmstore/hashmap"
	"github.com/hupe1980/mmstore/memory"
	"github.com/hupe1980/mmstore/record"
)

// File names inside an index directory.
const (
	BucketsFile    = "buckets"
	PostingsFile   = "postings"
	DescriptorFile = "index.json"
)

// ErrSchemaMismatch is returned for records of another schema.
var ErrSchemaMismatch = errors.New("index: record schema mismatch")

// descriptor binds a stored index to its backend and schema fields.
type descriptor struct {
	Backend     string `json:"backend"`
	IDField     string `json:"id_field"`
	VectorField string `json:"vector_field,omitempty"`
}

// Index maps keys to posting lists.
type Index[K comparable] struct {
	opts    options
	meta    *record.RecordMeta
	backend Backend
	idTag   int
	vecTag  int
	vecType record.Type

	mu       sync.Mutex // serializes writers
	regions  []memory.Memory
	buckets  *hashmap.Map[K, bucket]
	postings *alloc.Recycled
}

// Open opens or creates the index in dir.
func Open[K comparable](dir string, meta *record.RecordMeta, backend Backend, optFns ...Option) (*Index[K], error) {
	o := applyOptions(optFns)

	desc := descriptor{Backend: backend.Kind().String(), IDField: o.idField, VectorField: o.vectorField}
	if err := checkDescriptor(dir, desc, o.readOnly); err != nil {
		return nil, err
	}

	var regions []memory.Memory

	for _, name := range []string{BucketsFile, PostingsFile} {
		mem, err := memory.OpenMMap(filepath.Join(dir, name), memoryOptions(o, name)...)
		if err != nil {
			closeAll(regions)
			return nil, err
		}

		regions = append(regions, mem)
	}

	idx, err := build[K](o, meta, backend, regions)
	if err != nil {
		closeAll(regions)
		o.logger.Error("index open failed", "dir", dir, "error", err)

		return nil, err
	}

	o.logger.Info("index opened", "dir", dir, "backend", desc.Backend, "keys", idx.Len(), "read_only", o.readOnly)

	return idx, nil
}

// NewInMemory creates an ephemeral index backed by anonymous memory.
func NewInMemory[K comparable](meta *record.RecordMeta, backend Backend, optFns ...Option) (*Index[K], error) {
	o := applyOptions(optFns)
	o.readOnly = false

	var regions []memory.Memory

	for _, name := range []string{BucketsFile, PostingsFile} {
		mem, err := memory.NewHeap(memoryOptions(o, name)...)
		if err != nil {
			closeAll(regions)
			return nil, err
		}

		regions = append(regions, mem)
	}

	idx, err := build[K](o, meta, backend, regions)
	if err != nil {
		closeAll(regions)
		return nil, err
	}

	return idx, nil
}

func checkDescriptor(dir string, want descriptor, readOnly bool) error {
	path := filepath.Join(dir, DescriptorFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var got descriptor
		if err := codec.Default.Unmarshal(data, &got); err != nil {
			return fmt.Errorf("index: decode %s: %w", path, err)
		}

		if got != want {
			return fmt.Errorf("%w: stored %+v, opened with %+v", ErrBackendMismatch, got, want)
		}

		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("index: read descriptor: %w", err)
	case readOnly:
		return fmt.Errorf("index: read descriptor: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}

	data, err = codec.Default.Marshal(want)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func memoryOptions(o options, name string) []memory.Option {
	opts := []memory.Option{
		memory.WithName("index." + name),
		memory.WithLogger(o.logger.With("region", name)),
		memory.WithMetrics(o.metrics),
	}

	if o.maxSize > 0 {
		opts = append(opts, memory.WithMaxSize(o.maxSize))
	}

	if o.readOnly {
		opts = append(opts, memory.WithReadOnly())
	}

	return opts
}

func build[K comparable](o options, meta *record.RecordMeta, backend Backend, regions []memory.Memory) (*Index[K], error) {
	idTag, err := meta.Tag(o.idField)
	if err != nil {
		return nil, fmt.Errorf("index: id field %q: %w", o.idField, err)
	}

	if f, _ := meta.FieldByTag(idTag); !f.Type.Integer() || f.IsArray() {
		return nil, fmt.Errorf("index: id field %q is not an integer scalar", o.idField)
	}

	vecTag, vecType := -1, record.Type(0)

	if o.vectorField != "" {
		f, ok := meta.Field(o.vectorField)
		if !ok {
			return nil, fmt.Errorf("index: vector field %q: %w", o.vectorField, record.ErrUnknownField)
		}

		if !f.IsArray() || (f.Type != record.TypeFloat && f.Type != record.TypeDouble) {
			return nil, fmt.Errorf("index: vector field %q is not a float array", o.vectorField)
		}

		vecTag, vecType = f.Tag, f.Type
	}

	if _, ok := backend.(Searcher); ok && vecTag < 0 {
		return nil, fmt.Errorf("index: %s backend needs a vector field", backend.Kind())
	}

	buckets, err := hashmap.New[K, bucket](regions[0], o.maxKeys,
		hashmap.WithLoadFactor[K](o.loadFactor),
		hashmap.WithLogger[K](o.logger),
	)
	if err != nil {
		return nil, err
	}

	if !o.readOnly {
		buckets.Range(func(_ K, b *bucket) bool {
			b.settle()
			return true
		})
	}

	postings, err := NewPostingAllocator(regions[1], backend, o.allocConfig,
		alloc.WithClock(o.clock),
		alloc.WithLogger(o.logger),
		alloc.WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}

	return &Index[K]{
		opts:     o,
		meta:     meta,
		backend:  backend,
		idTag:    idTag,
		vecTag:   vecTag,
		vecType:  vecType,
		regions:  regions,
		buckets:  buckets,
		postings: postings,
	}, nil
}

func closeAll(regions []memory.Memory) {
	for _, r := range regions {
		_ = r.Close()
	}
}

func (idx *Index[K]) observe(op string, start time.Time, err error) {
	idx.opts.metrics.RecordOp("index", op, time.Since(start), err)
}

// Backend returns the posting list backend.
func (idx *Index[K]) Backend() Backend { return idx.backend }

// Allocator returns the posting allocator.
func (idx *Index[K]) Allocator() *alloc.Recycled { return idx.postings }

// NewPosting extracts the posting of rec: its id field and, if configured,
// its vector field.
func (idx *Index[K]) NewPosting(rec *record.Record) (Posting, error) {
	if rec.Meta() != idx.meta {
		return Posting{}, ErrSchemaMismatch
	}

	id, err := rec.Accessor().Uint(rec.Bytes(), idx.idTag)
	if err != nil {
		return Posting{}, err
	}

	p := Posting{ID: id}

	if idx.vecTag < 0 {
		return p, nil
	}

	n, err := rec.Len(idx.vecTag)
	if err != nil {
		return Posting{}, err
	}

	p.Vector = make([]float32, n)

	for i := range n {
		if idx.vecType == record.TypeDouble {
			v, err := record.GetFieldAt[float64](rec, idx.vecTag, i)
			if err != nil {
				return Posting{}, err
			}

			p.Vector[i] = float32(v)

			continue
		}

		if p.Vector[i], err = record.GetFieldAt[float32](rec, idx.vecTag, i); err != nil {
			return Posting{}, err
		}
	}

	return p, nil
}

// Add indexes rec under key, creating the posting list if needed. It
// reports whether the id was not indexed under key before.
func (idx *Index[K]) Add(key K, rec *record.Record) (bool, error) {
	p, err := idx.NewPosting(rec)
	if err != nil {
		return false, err
	}

	pl, err := idx.List(key)
	if err != nil {
		return false, err
	}

	return pl.Add(p)
}

// Remove removes id from the posting list of key.
func (idx *Index[K]) Remove(key K, id uint64) (bool, error) {
	pl, ok := idx.Lookup(key)
	if !ok {
		return false, nil
	}

	return pl.Remove(id)
}

// BulkLoad indexes every record under key, growing the list once.
func (idx *Index[K]) BulkLoad(key K, recs []*record.Record) (int, error) {
	ps := make([]Posting, 0, len(recs))

	for _, rec := range recs {
		p, err := idx.NewPosting(rec)
		if err != nil {
			return 0, err
		}

		ps = append(ps, p)
	}

	pl, err := idx.List(key)
	if err != nil {
		return 0, err
	}

	return pl.BulkLoad(ps)
}

// Lookup returns the posting list of key.
func (idx *Index[K]) Lookup(key K) (*PostingList[K], bool) {
	if _, ok := idx.buckets.Find(key); !ok {
		return nil, false
	}

	return &PostingList[K]{idx: idx, key: key}, true
}

// List returns the posting list of key, creating an empty one if needed.
func (idx *Index[K]) List(key K) (*PostingList[K], error) {
	if _, ok := idx.buckets.Find(key); !ok {
		if idx.opts.readOnly {
			return nil, memory.ErrReadOnly
		}

		if _, err := idx.buckets.Emplace(key, bucket{}); err != nil {
			return nil, err
		}
	}

	return &PostingList[K]{idx: idx, key: key}, nil
}

// Len returns the number of keys.
func (idx *Index[K]) Len() int { return idx.buckets.Len() }

// Range calls fn for every posting list until fn returns false.
func (idx *Index[K]) Range(fn func(key K, pl *PostingList[K]) bool) {
	idx.buckets.Range(func(key K, _ *bucket) bool {
		return fn(key, &PostingList[K]{idx: idx, key: key})
	})
}

// Dump persists both regions.
func (idx *Index[K]) Dump() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var errs []error
	for _, r := range idx.regions {
		errs = append(errs, r.Dump())
	}

	return errors.Join(errs...)
}

// Close releases both regions. It does not dump.
func (idx *Index[K]) Close() error {
	var errs []error
	for _, r := range idx.regions {
		errs = append(errs, r.Close())
	}

	return errors.Join(errs...)
}
