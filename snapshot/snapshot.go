package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmstore/blobstore"
	"github.com/hupe1980/mmstore/internal/hash"
	"github.com/hupe1980/mmstore/internal/resource"
)

const component = "snapshot"

// Export uploads every regular file under dir to store below prefix and
// writes the manifest last.
func Export(ctx context.Context, dir string, store blobstore.BlobStore, prefix string, optFns ...Option) (_ *Manifest, err error) {
	o := applyOptions(optFns)
	start := time.Now()

	defer func() { o.metrics.RecordOp(component, "export", time.Since(start), err) }()

	files, err := localFiles(dir)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version: ManifestVersion,
		Created: o.clock.Now().UTC(),
		Files:   make([]File, len(files)),
	}

	rc := resource.NewController(o.limits)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.Workers())

	for i, name := range files {
		g.Go(func() error {
			f, err := exportFile(gctx, rc, o, dir, name, store, prefix)
			if err != nil {
				return fmt.Errorf("snapshot: export %s: %w", name, err)
			}

			m.Files[i] = f

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("snapshot export failed", "dir", dir, "prefix", prefix, "error", err)
		return nil, err
	}

	if err := writeManifest(ctx, store, prefix, m); err != nil {
		return nil, err
	}

	o.logger.Info("snapshot exported",
		"dir", dir, "prefix", prefix, "files", len(m.Files),
		"bytes", m.Size(), "stored", m.StoredSize(), "duration", time.Since(start))

	return m, nil
}

func exportFile(ctx context.Context, rc *resource.Controller, o options, dir, name string, store blobstore.BlobStore, prefix string) (File, error) {
	fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return File{}, err
	}

	if err := rc.AcquireMemory(ctx, fi.Size()); err != nil {
		return File{}, err
	}
	defer rc.ReleaseMemory(fi.Size())

	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return File{}, err
	}

	stored, c, err := compress(raw, o.compression)
	if err != nil {
		return File{}, err
	}

	if err := rc.AcquireIO(ctx, len(stored)); err != nil {
		return File{}, err
	}

	if err := store.Put(ctx, path.Join(prefix, name), stored); err != nil {
		return File{}, err
	}

	return File{
		Name:        name,
		Size:        int64(len(raw)),
		StoredSize:  int64(len(stored)),
		CRC32C:      hash.CRC32C(raw),
		Compression: c.String(),
	}, nil
}

// localFiles returns the slash-separated relative paths of the regular files
// under dir in lexical order. Temporary files are skipped.
func localFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() || isTemp(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		if rel = filepath.ToSlash(rel); rel != ManifestName {
			files = append(files, rel)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: scan %s: %w", dir, err)
	}

	return files, nil
}

func isTemp(name string) bool {
	return strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".tmp-")
}

// Import downloads the snapshot under prefix into dir, verifying every file
// against the manifest. Files are written atomically; existing files with the
// same names are replaced.
func Import(ctx context.Context, store blobstore.BlobStore, prefix, dir string, optFns ...Option) (_ *Manifest, err error) {
	o := applyOptions(optFns)
	start := time.Now()

	defer func() { o.metrics.RecordOp(component, "import", time.Since(start), err) }()

	m, err := Load(ctx, store, prefix)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}

	rc := resource.NewController(o.limits)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.Workers())

	for _, f := range m.Files {
		g.Go(func() error {
			if err := importFile(gctx, rc, store, prefix, dir, f); err != nil {
				return fmt.Errorf("snapshot: import %s: %w", f.Name, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("snapshot import failed", "dir", dir, "prefix", prefix, "error", err)
		return nil, err
	}

	o.logger.Info("snapshot imported",
		"dir", dir, "prefix", prefix, "files", len(m.Files),
		"bytes", m.Size(), "duration", time.Since(start))

	return m, nil
}

func importFile(ctx context.Context, rc *resource.Controller, store blobstore.BlobStore, prefix, dir string, f File) error {
	need := f.StoredSize + f.Size
	if err := rc.AcquireMemory(ctx, need); err != nil {
		return err
	}
	defer rc.ReleaseMemory(need)

	if err := rc.AcquireIO(ctx, int(f.StoredSize)); err != nil {
		return err
	}

	stored, err := blobstore.ReadAll(ctx, store, path.Join(prefix, f.Name))
	if err != nil {
		return err
	}

	if int64(len(stored)) != f.StoredSize {
		return fmt.Errorf("%w: stored size %d, want %d", ErrChecksum, len(stored), f.StoredSize)
	}

	c, err := ParseCompression(f.Compression)
	if err != nil {
		return err
	}

	raw, err := decompress(stored, c, f.Size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksum, err)
	}

	if sum := hash.CRC32C(raw); sum != f.CRC32C {
		return fmt.Errorf("%w: crc32c %08x, want %08x", ErrChecksum, sum, f.CRC32C)
	}

	return writeFileAtomic(filepath.Join(dir, filepath.FromSlash(f.Name)), raw)
}

func writeFileAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := errors.Join(tmp.Sync(), tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return nil
}

// Delete removes the snapshot under prefix. The manifest goes first so a
// partially deleted snapshot is never importable.
func Delete(ctx context.Context, store blobstore.BlobStore, prefix string) error {
	m, err := Load(ctx, store, prefix)
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, path.Join(prefix, ManifestName)); err != nil {
		return err
	}

	var errs []error
	for _, f := range m.Files {
		errs = append(errs, store.Delete(ctx, path.Join(prefix, f.Name)))
	}

	return errors.Join(errs...)
}
