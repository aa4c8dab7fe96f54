package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file or anonymous region.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	size     int
	writable bool
	closed   atomic.Bool

	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Open maps the whole file at path into memory as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}

	return OpenFile(f, int(size), false)
}

// OpenFile maps size bytes of f. The size may exceed the current file length;
// pages past the end of file become accessible once the file is extended.
// The mapping stays valid after f is closed.
func OpenFile(f *os.File, size int, writable bool) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{writable: writable}, nil
	}

	data, unmapFunc, err := osMap(f, size, writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: writable,
		unmap:    unmapFunc,
	}, nil
}

// MapAnon creates a private read-write anonymous mapping of size bytes.
// Pages are committed lazily by the kernel on first touch.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmapFunc, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: true,
		unmap:    unmapFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}

	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}

	return nil
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}

	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was created with write access.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if m.data == nil {
		return nil
	}

	return osAdvise(m.data, pattern)
}

// Sync flushes the first n bytes of a writable mapping to its backing file.
func (m *Mapping) Sync(n int) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if !m.writable || m.data == nil || n <= 0 {
		return nil
	}

	if n > len(m.data) {
		n = len(m.data)
	}

	return osSync(m.data[:n])
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	if off < 0 {
		return 0, ErrInvalidOffset
	}

	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}
