package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hupe1980/mmstore/codec"
	"github.com/hupe1980/mmstore/internal/conv"
	"github.com/hupe1980/mmstore/internal/mmap"
)

// MetaSuffix is appended to a region path to name its sidecar document.
const MetaSuffix = ".meta"

var _ Memory = (*MMap)(nil)

// MMap is a file-backed Memory. The data file holds the raw region bytes and
// path+MetaSuffix holds the Meta document written by Dump.
type MMap struct {
	region

	path    string
	file    *os.File
	mapping *mmap.Mapping
}

// OpenMMap opens or creates the region stored at path.
//
// A fresh region starts with WithInitialSize bytes of capacity. An existing
// region restores allocated and capacity from its sidecar. In read-only mode
// the sidecar must exist unless the data file is empty.
func OpenMMap(path string, optFns ...Option) (*MMap, error) {
	o := applyOptions(DefaultMaxSize, optFns)

	m := &MMap{
		region: region{opts: o, kind: KindMMap},
		path:   path,
	}
	m.extend = m.extendFile

	flag := os.O_RDWR | os.O_CREATE
	if o.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	m.file = f

	if err := m.init(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return m, nil
}

func (m *MMap) init() error {
	fi, err := m.file.Stat()
	if err != nil {
		return fmt.Errorf("memory: stat %s: %w", m.path, err)
	}

	fileSize, err := conv.IntToUint64(int(fi.Size()))
	if err != nil {
		return err
	}

	meta, err := LoadMeta(m.path)

	switch {
	case err == nil:
		if meta.Capacity > fileSize || meta.Allocated > meta.Capacity {
			return fmt.Errorf("%w: %s: allocated=%d capacity=%d file=%d",
				ErrCorruptMeta, m.path, meta.Allocated, meta.Capacity, fileSize)
		}
		m.allocated.Store(meta.Allocated)
		m.capacity.Store(meta.Capacity)
	case errors.Is(err, fs.ErrNotExist) && fileSize == 0:
		m.allocated.Store(StartOffset)
		if !m.opts.readOnly && m.opts.initialSize > 0 {
			if err := m.extendFile(m.opts.initialSize); err != nil {
				return fmt.Errorf("memory: initialize %s: %w", m.path, err)
			}
			m.capacity.Store(m.opts.initialSize)
		}
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s has %d bytes but no sidecar", ErrCorruptMeta, m.path, fileSize)
	default:
		return err
	}

	mapSize := m.opts.maxSize
	if m.opts.readOnly {
		mapSize = m.capacity.Load()
	}

	if m.capacity.Load() > mapSize {
		return fmt.Errorf("%w: capacity %d exceeds max size %d", ErrCorruptMeta, m.capacity.Load(), mapSize)
	}

	size, err := conv.Uint64ToInt(mapSize)
	if err != nil {
		return err
	}

	mapping, err := mmap.OpenFile(m.file, size, !m.opts.readOnly)
	if err != nil {
		return fmt.Errorf("memory: map %s: %w", m.path, err)
	}

	m.mapping = mapping
	m.data = mapping.Bytes()

	m.logger().Debug("region opened",
		"path", m.path,
		"allocated", m.allocated.Load(),
		"capacity", m.capacity.Load(),
		"read_only", m.opts.readOnly,
	)

	return nil
}

// extendFile forces the filesystem to back [0, newCap) by writing a single
// byte at the new end of file.
func (m *MMap) extendFile(newCap uint64) error {
	if newCap == 0 {
		return nil
	}

	fi, err := m.file.Stat()
	if err != nil {
		return err
	}

	if uint64(fi.Size()) >= newCap {
		return nil
	}

	_, err = m.file.WriteAt([]byte{0}, int64(newCap-1))

	return err
}

// Path returns the data file path.
func (m *MMap) Path() string { return m.path }

// Dump flushes the mapping, truncates the data file to the allocated size and
// writes the sidecar. Capacity shrinks to Allocated.
func (m *MMap) Dump() error {
	if m.opts.readOnly {
		return ErrReadOnly
	}

	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	allocated := m.allocated.Load()

	n, err := conv.Uint64ToInt(allocated)
	if err != nil {
		return err
	}

	if err := m.mapping.Sync(n); err != nil {
		return fmt.Errorf("memory: sync %s: %w", m.path, err)
	}

	if err := m.file.Truncate(int64(allocated)); err != nil {
		return fmt.Errorf("memory: truncate %s: %w", m.path, err)
	}

	m.capacity.Store(allocated)

	if err := writeMeta(m.path, m.opts.codec, m.meta()); err != nil {
		return err
	}

	m.logger().Info("region dumped", "path", m.path, "allocated", allocated)

	return nil
}

// Close unmaps the region and closes the data file.
func (m *MMap) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	var errs []error
	if m.mapping != nil {
		errs = append(errs, m.mapping.Close())
	}
	errs = append(errs, m.file.Close())
	m.data = nil

	return errors.Join(errs...)
}

// LoadMeta reads the sidecar of the region stored at path.
func LoadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path + MetaSuffix)
	if err != nil {
		return Meta{}, err
	}

	// Sidecars are JSON regardless of the writing codec.
	var meta Meta
	if err := codec.Default.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("%w: %s: %v", ErrCorruptMeta, path, err)
	}

	if _, err := ParseKind(meta.Type); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}

	return meta, nil
}

func writeMeta(path string, c codec.Codec, meta Meta) error {
	data, err := c.Marshal(meta)
	if err != nil {
		return fmt.Errorf("memory: encode meta: %w", err)
	}

	tmp := path + MetaSuffix + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write meta: %w", err)
	}

	if err := os.Rename(tmp, path+MetaSuffix); err != nil {
		return fmt.Errorf("memory: write meta: %w", err)
	}

	return nil
}
