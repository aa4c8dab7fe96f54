// Package memory provides growable, byte-addressable regions that hand out
// stable offsets.
//
// A Memory is a bump region with a persisted high-water mark (Allocated) and a
// capacity. Offset 0 is reserved as null. Every allocation is aligned to
// Alignment bytes, so the first offset handed out on a fresh region is 8.
//
// Two implementations exist:
//
//   - MMap is backed by a file. The full maximum size is reserved as one
//     shared mapping when the region is opened; growth only extends the file,
//     so addresses of allocated offsets never move while the region is open.
//     Dump persists {type, allocated, capacity} to a sidecar document
//     (path + ".meta") and trims the file to the allocated size.
//   - Heap is an anonymous private mapping for ephemeral regions and tests.
//
// Memory never reuses offsets itself; recycling is the job of package alloc.
// Mutation assumes a single writer. Read-only regions reject Allocate and
// Reset with ErrReadOnly.
package memory
