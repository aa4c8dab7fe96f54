package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/mmstore/blobstore"
	"github.com/hupe1980/mmstore/codec"
)

// ManifestName is the blob written last by Export.
const ManifestName = "MANIFEST.json"

// ManifestVersion is the current manifest format.
const ManifestVersion = 1

var (
	// ErrNoManifest is returned when a prefix holds no complete snapshot.
	ErrNoManifest = errors.New("snapshot: manifest not found")
	// ErrInvalidManifest is returned for unsupported or unsafe manifests.
	ErrInvalidManifest = errors.New("snapshot: invalid manifest")
	// ErrChecksum is returned when an imported file does not match the manifest.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
)

// Manifest describes an exported snapshot.
type Manifest struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
	Files   []File    `json:"files"`
}

// File is one exported file.
type File struct {
	// Name is the slash-separated path relative to the exported directory.
	Name string `json:"name"`
	// Size is the raw file size.
	Size int64 `json:"size"`
	// StoredSize is the size of the blob after compression.
	StoredSize int64 `json:"stored_size"`
	// CRC32C is the checksum of the raw file.
	CRC32C      uint32 `json:"crc32c"`
	Compression string `json:"compression"`
}

// Size returns the total raw size of all files.
func (m *Manifest) Size() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}

	return n
}

// StoredSize returns the total size of all blobs.
func (m *Manifest) StoredSize() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.StoredSize
	}

	return n
}

func (m *Manifest) validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidManifest, m.Version)
	}

	for _, f := range m.Files {
		if !validName(f.Name) {
			return fmt.Errorf("%w: file name %q", ErrInvalidManifest, f.Name)
		}

		if _, err := ParseCompression(f.Compression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}

		if f.Size < 0 || f.StoredSize < 0 {
			return fmt.Errorf("%w: negative size for %q", ErrInvalidManifest, f.Name)
		}
	}

	return nil
}

// validName rejects names that would escape the import directory.
func validName(name string) bool {
	if name == "" || name == ManifestName || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}

	return path.Clean(name) == name && name != ".." && !strings.HasPrefix(name, "../")
}

// Load reads and validates the manifest under prefix.
func Load(ctx context.Context, store blobstore.BlobStore, prefix string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, path.Join(prefix, ManifestName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, prefix)
		}

		return nil, err
	}

	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

func writeManifest(ctx context.Context, store blobstore.BlobStore, prefix string, m *Manifest) error {
	data, err := codec.Default.Marshal(m)
	if err != nil {
		return fmt.Errorf("snapshot: encode manifest: %w", err)
	}

	return store.Put(ctx, path.Join(prefix, ManifestName), data)
}
