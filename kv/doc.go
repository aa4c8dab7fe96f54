// Package kv composes a hashmap (key -> id), a FixedChunkMap (id -> record
// buffer) and two BitMaskMaps (id -> tombstone, id -> vacant chunk) into a
// key-value store of schema-described records. Strings and variable arrays
// referenced from the records live in a recycled allocator.
//
// An id is claimed with Insert and starts out tombstoned. Add copies a record
// into the id's chunk and clears the tombstone last, so a reader that sees
// Exist(id) == true always sees the complete record. Update and Remove set
// the tombstone before touching the chunk. A failed Update leaves the record
// tombstoned but not vacant, so it can be updated again or removed.
//
// A KV has one writer. Readers may run concurrently with it.
package kv
