// Package mmap provides memory-mapped file access for the storage regions.
//
// # Overview
//
// Regions are mapped once with their maximum size reserved up front. The
// backing file only has to cover the pages that are actually touched, so a
// region grows by extending the file and never by remapping. Addresses handed
// out for already allocated offsets therefore stay valid for the lifetime of
// the mapping.
//
// # Usage
//
//	m, err := mmap.OpenFile(f, maxSize, true)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // len(data) == maxSize
//	m.Advise(mmap.AccessRandom)
//	m.Sync()          // flush dirty pages to the file
//
// # Thread Safety
//
// Mapping is safe for concurrent read access. Close is idempotent and
// protected by an atomic flag. Callers must ensure no goroutine touches
// Bytes() after Close returns.
//
// # Anonymous Mappings
//
// MapAnon creates read-write anonymous mappings. They back the ephemeral heap
// regions and keep large buffers out of the Go garbage collector.
package mmap
