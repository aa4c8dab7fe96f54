package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/hashmap"
	"github.com/hupe1980/mmstore/memory"
	"github.com/hupe1980/mmstore/record"
)

// Region file names inside a store directory.
const (
	KeysFile   = "keys"
	ChunksFile = "chunks"
	MaskFile   = "mask"
	VacantFile = "vacant"
	HeapFile   = "heap"
)

var regionFiles = []string{KeysFile, ChunksFile, MaskFile, VacantFile, HeapFile}

var (
	// ErrExists is returned by Add for an id that already holds a record.
	ErrExists = errors.New("kv: record exists")
	// ErrNotFound is returned by Update for an id without a record.
	ErrNotFound = errors.New("kv: record not found")
	// ErrSchemaMismatch is returned for records of another schema.
	ErrSchemaMismatch = errors.New("kv: record schema mismatch")
	// ErrCorrupt is returned when a region does not hold the expected structure.
	ErrCorrupt = errors.New("kv: corrupt region")
)

// KV is a key-value store of records.
type KV[K comparable] struct {
	opts options
	meta *record.RecordMeta
	acc  *record.Accessor

	regions []memory.Memory
	keys    *hashmap.Map[K, uint64]
	chunks  *FixedChunkMap
	mask    *BitMaskMap
	vacant  *BitMaskMap // set while a chunk holds no record data
	heap    *alloc.Recycled
}

// Open opens or creates the store in dir.
func Open[K comparable](dir string, meta *record.RecordMeta, optFns ...Option) (*KV[K], error) {
	o := applyOptions(optFns)

	if !o.readOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kv: create %s: %w", dir, err)
		}
	}

	var regions []memory.Memory

	for _, name := range regionFiles {
		mem, err := memory.OpenMMap(filepath.Join(dir, name), memoryOptions(o, name)...)
		if err != nil {
			closeAll(regions)
			return nil, err
		}

		regions = append(regions, mem)
	}

	kv, err := build[K](o, meta, regions)
	if err != nil {
		closeAll(regions)
		o.logger.Error("kv open failed", "dir", dir, "error", err)

		return nil, err
	}

	o.logger.Info("kv opened", "dir", dir, "keys", kv.Len(), "read_only", o.readOnly)

	return kv, nil
}

// NewInMemory creates an ephemeral store backed by anonymous memory.
func NewInMemory[K comparable](meta *record.RecordMeta, optFns ...Option) (*KV[K], error) {
	o := applyOptions(optFns)
	o.readOnly = false

	var regions []memory.Memory

	for _, name := range regionFiles {
		mem, err := memory.NewHeap(memoryOptions(o, name)...)
		if err != nil {
			closeAll(regions)
			return nil, err
		}

		regions = append(regions, mem)
	}

	kv, err := build[K](o, meta, regions)
	if err != nil {
		closeAll(regions)
		return nil, err
	}

	return kv, nil
}

func memoryOptions(o options, name string) []memory.Option {
	opts := []memory.Option{
		memory.WithName("kv." + name),
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

func build[K comparable](o options, meta *record.RecordMeta, regions []memory.Memory) (*KV[K], error) {
	acc := record.NewAccessor(meta, record.WithLogger(o.logger))

	keys, err := hashmap.New[K, uint64](regions[0], o.maxKeys,
		hashmap.WithLoadFactor[K](o.loadFactor),
		hashmap.WithLogger[K](o.logger),
	)
	if err != nil {
		return nil, err
	}

	chunks, err := NewFixedChunkMap(regions[1], acc.Size())
	if err != nil {
		return nil, err
	}

	mask, err := NewBitMaskMap(regions[2])
	if err != nil {
		return nil, err
	}

	vacant, err := NewBitMaskMap(regions[3])
	if err != nil {
		return nil, err
	}

	heap, err := alloc.NewRecycled(regions[4], o.allocConfig,
		alloc.WithName("kv.heap"),
		alloc.WithClock(o.clock),
		alloc.WithLogger(o.logger),
		alloc.WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}

	return &KV[K]{
		opts:    o,
		meta:    meta,
		acc:     acc,
		regions: regions,
		keys:    keys,
		chunks:  chunks,
		mask:    mask,
		vacant:  vacant,
		heap:    heap,
	}, nil
}

func closeAll(regions []memory.Memory) {
	for _, r := range regions {
		_ = r.Close()
	}
}

func (kv *KV[K]) observe(op string, start time.Time, err error) {
	kv.opts.metrics.RecordOp("kv", op, time.Since(start), err)
}

// Accessor returns the accessor of the store schema.
func (kv *KV[K]) Accessor() *record.Accessor { return kv.acc }

// Allocator returns the allocator owning variable-length record data.
func (kv *KV[K]) Allocator() alloc.Allocator { return kv.heap }

// Insert binds key to id, overwriting a previous binding, and tombstones id
// until a record is added.
func (kv *KV[K]) Insert(key K, id uint64) (err error) {
	start := time.Now()
	defer func() { kv.observe("insert", start, err) }()

	if kv.opts.readOnly {
		return memory.ErrReadOnly
	}

	if err := kv.keys.Upsert(key, id); err != nil {
		return err
	}

	return kv.mask.Set(id)
}

// Add stores a copy of rec under id and publishes it. It fails with
// ErrExists if id already holds a record.
func (kv *KV[K]) Add(id uint64, rec *record.Record) (err error) {
	start := time.Now()
	defer func() { kv.observe("add", start, err) }()

	if kv.opts.readOnly {
		return memory.ErrReadOnly
	}

	if rec.Meta() != kv.meta {
		return ErrSchemaMismatch
	}

	if kv.Exist(id) {
		return fmt.Errorf("%w: id %d", ErrExists, id)
	}

	if err := kv.chunks.Ensure(id); err != nil {
		return err
	}

	// The tombstone must cover the chunk even if id was never inserted.
	if err := kv.mask.Ensure(id); err != nil {
		return err
	}

	// From here on the chunk may own sub-allocations that Remove must free.
	if err := kv.vacant.Clear(id); err != nil {
		return err
	}

	if err := kv.acc.Copy(kv.chunks.Get(id), kv.heap, rec.Bytes(), rec.Allocator()); err != nil {
		return err
	}

	return kv.mask.Clear(id)
}

// Update merges the fields present in rec into the record of id. The record
// is hidden while it is rewritten. If the merge fails the record stays
// hidden until it is updated successfully or removed.
func (kv *KV[K]) Update(id uint64, rec *record.Record) (err error) {
	start := time.Now()
	defer func() { kv.observe("update", start, err) }()

	if kv.opts.readOnly {
		return memory.ErrReadOnly
	}

	if rec.Meta() != kv.meta {
		return ErrSchemaMismatch
	}

	if !kv.holds(id) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if err := kv.mask.Set(id); err != nil {
		return err
	}

	if err := kv.acc.Merge(kv.chunks.Get(id), kv.heap, rec.Bytes(), rec.Allocator()); err != nil {
		kv.opts.logger.Warn("kv update failed, record stays hidden", "id", id, "error", err)
		return err
	}

	return kv.mask.Clear(id)
}

// Remove hides the record of id and releases its variable-length data. The
// id stays bound to its key. A record hidden by a failed Update is removed
// as well. It reports whether a record was removed.
func (kv *KV[K]) Remove(id uint64) (removed bool, err error) {
	start := time.Now()
	defer func() { kv.observe("remove", start, err) }()

	if kv.opts.readOnly {
		return false, memory.ErrReadOnly
	}

	if !kv.holds(id) {
		return false, nil
	}

	if err := kv.mask.Set(id); err != nil {
		return false, err
	}

	if err := kv.acc.Reset(kv.chunks.Get(id), kv.heap); err != nil {
		return true, err
	}

	return true, kv.vacant.Set(id)
}

// Find returns the id bound to key. It does not check whether the id holds
// a record; use Exist for that.
func (kv *KV[K]) Find(key K) (uint64, bool) {
	return kv.keys.Find(key)
}

// Exist reports whether id holds a published record.
func (kv *KV[K]) Exist(id uint64) bool {
	return id < kv.chunks.Len() && !kv.mask.Test(id)
}

// holds reports whether the chunk of id carries record data, published or
// hidden by a failed Update.
func (kv *KV[K]) holds(id uint64) bool {
	return id < kv.chunks.Len() && !kv.vacant.Test(id)
}

// Get returns the record of id. The record aliases the store; it must not
// be used after the id is removed and the allocator delay has elapsed.
func (kv *KV[K]) Get(id uint64) (*record.Record, bool) {
	if !kv.Exist(id) {
		return nil, false
	}

	rec, err := record.New(kv.acc, kv.heap, kv.chunks.Get(id))
	if err != nil {
		return nil, false
	}

	return rec, true
}

// Lookup is Find followed by Get.
func (kv *KV[K]) Lookup(key K) (*record.Record, bool) {
	id, ok := kv.Find(key)
	if !ok {
		return nil, false
	}

	return kv.Get(id)
}

// Len returns the number of bound keys.
func (kv *KV[K]) Len() int { return kv.keys.Len() }

// Count returns the number of published records.
func (kv *KV[K]) Count() uint64 { return kv.mask.Count(kv.chunks.Len()) }

// Range calls fn for every key until fn returns false.
func (kv *KV[K]) Range(fn func(key K, id uint64) bool) {
	kv.keys.Range(func(key K, id *uint64) bool {
		return fn(key, *id)
	})
}

// NewRecord allocates a temporary record of the store schema on the Go heap.
func (kv *KV[K]) NewRecord() (*record.Record, error) {
	rec, _, err := record.Allocate(kv.acc, alloc.NewHeap())
	return rec, err
}

// Dump persists every region.
func (kv *KV[K]) Dump() error {
	var errs []error
	for _, r := range kv.regions {
		errs = append(errs, r.Dump())
	}

	return errors.Join(errs...)
}

// Close releases every region. It does not dump.
func (kv *KV[K]) Close() error {
	var errs []error
	for _, r := range kv.regions {
		errs = append(errs, r.Close())
	}

	return errors.Join(errs...)
}
