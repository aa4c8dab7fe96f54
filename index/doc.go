// Package index implements secondary indexes over records.
//
// An Index maps a key to a posting list: the set of record ids (plus an
// optional payload such as a vector) indexed under that key. Posting list
// state lives in two regions:
//
//   - buckets: a hashmap.Map from key to PostingMeta, held by value behind
//     a sequence counter so readers never see a half-written meta
//   - postings: a PostingAllocator (alloc.Recycled) holding the list blocks
//
// PostingMeta is the only persisted per-list state. A PostingList looks it up
// fresh on every call and writes it back after every mutation, so no pointer
// into a posting block survives growth.
//
// # Backends
//
// The set of backends is closed:
//
//   - bitmap: a growable bit vector over ids (index/bitmap)
//   - roaring: a compressed roaring64 bitmap (index/roaring)
//   - flat: sorted ids with raw float32 vectors and exact search (index/flat)
//
// # Concurrency
//
// Mutations require a single writer; the Index serializes its own writers.
// Readers may run concurrently with the writer as long as they bound the
// time they hold an Iterator by the allocator delay.
package index
