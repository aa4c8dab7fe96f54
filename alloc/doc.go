// Package alloc turns a memory.Memory into an allocation API that hands out
// persistent offsets instead of pointers, so stored structures can reference
// each other across process restarts.
//
// Every block is preceded by an 8-byte header holding its length and a
// "borrowed" flag. Offset 0 is null for every allocator.
//
// Three strategies are provided:
//
//   - Bump never frees. In replace mode a deallocation marks the region stale
//     and the next allocation starts over from an empty region.
//   - Recycled buckets requests into size classes ("levels") and reuses freed
//     blocks through per-level free stacks. Freed blocks wait in a delay queue
//     for Config.DelayTime before they become reusable, so readers that still
//     hold an offset obtained before the free keep seeing valid memory as long
//     as they bound their hold time by the delay.
//   - Heap keeps blocks on the Go heap and is meant for temporary records and
//     tests.
//
// Allocators assume a single writer. Readers may run concurrently with it.
package alloc
