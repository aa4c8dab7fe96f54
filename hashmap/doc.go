// Package hashmap implements a fixed-capacity, lock-free, insert-only hash
// map whose slots live inside a memory.Memory, so a map built by one process
// can be reopened (read-only or writable) by another.
//
// Slots are claimed with a CAS on their state (empty -> constructing), filled
// off to the side, and published by a CAS that splices them onto the front of
// the chain rooted at the key's home slot. Readers walk chains without locks
// and never observe a partially constructed entry. Entries are never removed;
// callers express deletion by mutating the value in place.
//
// Keys and values must be pointer-free, since they are stored in raw memory.
// The map never resizes: capacity is fixed from the expected maximum number
// of entries and the load factor, and running out of slots yields ErrFull.
package hashmap
