// Package bitfield reads and writes fixed-width bit windows inside byte
// buffers. Bits are numbered little-endian: bit i lives in byte i/8 at
// position i%8.
package bitfield

import "encoding/binary"

// Window addresses Bits bits starting at a bit offset. A window may span up
// to nine bytes.
type Window struct {
	Byte  uint64 // first byte touched
	Shift uint8  // bit position inside Byte
	Bits  uint8  // width, 1..64
	Mask  uint64 // (1 << Bits) - 1
}

// NewWindow returns the window of bits bits at bit offset off.
func NewWindow(off uint64, bits uint8) Window {
	return Window{
		Byte:  off / 8,
		Shift: uint8(off % 8),
		Bits:  bits,
		Mask:  MaskOf(bits),
	}
}

// MaskOf returns a mask of the low bits bits.
func MaskOf(bits uint8) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}

	return uint64(1)<<bits - 1
}

// Offset returns the bit offset of the window.
func (w Window) Offset() uint64 {
	return w.Byte*8 + uint64(w.Shift)
}

// At returns the window of the i-th element of a packed array starting at w.
func (w Window) At(i uint64) Window {
	return NewWindow(w.Offset()+i*uint64(w.Bits), w.Bits)
}

func (w Window) span() uint64 {
	return (uint64(w.Shift) + uint64(w.Bits) + 7) / 8
}

// Get returns the value stored in the window.
func (w Window) Get(buf []byte) uint64 {
	span := w.span()

	if w.Byte+8 <= uint64(len(buf)) {
		v := binary.LittleEndian.Uint64(buf[w.Byte:]) >> w.Shift
		if span > 8 {
			v |= uint64(buf[w.Byte+8]) << (64 - w.Shift)
		}

		return v & w.Mask
	}

	var v uint64
	for i := range span {
		v |= uint64(buf[w.Byte+i]) << (8 * i)
	}

	return (v >> w.Shift) & w.Mask
}

// Set stores v in the window. Bits of v above the window width are dropped;
// bits outside the window are preserved.
func (w Window) Set(buf []byte, v uint64) {
	v &= w.Mask

	lo, loMask := v<<w.Shift, w.Mask<<w.Shift
	// Shifting by 64 yields 0, so hi is empty unless the window spills.
	hi, hiMask := v>>(64-w.Shift), w.Mask>>(64-w.Shift)

	span := w.span()

	if w.Byte+8 <= uint64(len(buf)) {
		word := binary.LittleEndian.Uint64(buf[w.Byte:])
		binary.LittleEndian.PutUint64(buf[w.Byte:], word&^loMask|lo)

		if span > 8 {
			buf[w.Byte+8] = buf[w.Byte+8]&^byte(hiMask) | byte(hi)
		}

		return
	}

	for i := range min(span, 8) {
		m := byte(loMask >> (8 * i))
		buf[w.Byte+i] = buf[w.Byte+i]&^m | byte(lo>>(8*i))&m
	}
}

// SignExtend interprets the low bits bits of v as two's complement.
func SignExtend(v uint64, bits uint8) int64 {
	if bits >= 64 {
		return int64(v)
	}

	shift := 64 - bits

	return int64(v<<shift) >> shift
}

// Test reports whether bit i of buf is set.
func Test(buf []byte, i uint64) bool {
	return buf[i/8]&(1<<(i%8)) != 0
}

// SetBit sets bit i of buf.
func SetBit(buf []byte, i uint64) {
	buf[i/8] |= 1 << (i % 8)
}

// ClearBit clears bit i of buf.
func ClearBit(buf []byte, i uint64) {
	buf[i/8] &^= 1 << (i % 8)
}
