// Package record maps a declared schema onto a compact binary buffer and
// provides typed access to buffers laid out that way.
//
// A buffer has three regions:
//
//	[byte-aligned fields][pad to 8][bit-packed fields, 64-bit multiple][has-field bitmask]
//
// The byte-aligned region holds scalars stored at their natural width, fixed
// arrays of them, and 8-byte allocator offsets for strings and variable
// arrays. Booleans and integers declared with fewer bits than their natural
// width ("compact" fields) are packed into the bit region. The has-field
// bitmask holds one bit per tag in [0, MaxTag] and records which fields were
// set since the last Reset. The total size is a multiple of 8.
//
// Strings and variable arrays live in blocks owned by an alloc.Allocator:
//
//	string:         [len uint64][bytes]
//	variable array: [count uint64][elements]
//
// Compact elements of variable arrays are bit-packed inside the block. A
// zero offset reads as the declared default (strings) or as an empty array.
//
// A Record never owns memory; it only interprets a buffer owned by whoever
// allocated it.
package record
