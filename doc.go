// Package mmstore is an embedded storage engine built on memory-mapped
// regions.
//
// The building blocks live in subpackages:
//
//   - memory: growable heap and mmap regions addressed by offset
//   - alloc: bump and size-class recycling allocators with delayed reuse
//   - hashmap: a fixed-capacity, insert-only, lock-free hash map in a region
//   - record: schema-driven fixed-layout records with strings and arrays
//   - kv: key to record-id map plus record storage with tombstones
//   - index: posting lists keyed by term, with bitmap, roaring and flat
//     (vector) backends
//   - snapshot: export and import of dumped regions to a blob store
//
// # Quick Start
//
//	meta, _ := record.ParseYAML(schema)
//	store, _ := kv.Open[uint64]("./users", meta)
//	defer store.Close()
//
//	rec, _ := store.NewRecord()
//	_ = record.SetField(rec, 0, uint64(7))
//	_ = store.Insert(1001, 7)
//	_ = store.Add(7, rec)
//
//	rec, ok := store.Lookup(1001)
//
// # Concurrency
//
// Readers never take locks: kv.Lookup, hashmap.Find and posting-list
// iteration are safe while a single writer mutates. Writers serialize on
// their own. Freed blocks are reused only after the allocator's delay, so
// readers that loaded an offset just before a free still see valid memory.
//
// # Persistence
//
// Call Dump to truncate mmap regions to their allocated size and write
// their sidecars. A dumped directory can be reopened read-only or copied
// with the snapshot package.
//
// # Logging
//
// Every package accepts a *slog.Logger through a WithLogger option and
// discards output by default. This package provides constructors:
//
//	logger := mmstore.NewTextLogger(slog.LevelInfo)
//	store, _ := kv.Open[uint64]("./users", meta, kv.WithLogger(logger))
package mmstore
