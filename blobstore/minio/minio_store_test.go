package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/blobstore"
	"github.com/hupe1980/mmstore/kv"
	"github.com/hupe1980/mmstore/record"
	"github.com/hupe1980/mmstore/snapshot"
)

func TestStore_RelName(t *testing.T) {
	for _, prefix := range []string{"snapshots", "snapshots/"} {
		s := NewStore(nil, "b", prefix)
		assert.Equal(t, "snapshots/nightly/kv.bin", s.key("nightly/kv.bin"))
		assert.Equal(t, "nightly/kv.bin", s.relName("snapshots/nightly/kv.bin"))
	}

	s := NewStore(nil, "b", "")
	assert.Equal(t, "a/b", s.relName("a/b"))
}

// localMinio connects to a MinIO server on localhost:9000 with the default
// credentials and skips the test if none is running.
func localMinio(t *testing.T, bucket string) *minio.Client {
	t.Helper()

	client, err := minio.New("localhost:9000", &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)

	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	return client
}

func TestIntegration_MinioSnapshot(t *testing.T) {
	client := localMinio(t, "test-mmstore")
	ctx := context.Background()

	store := NewStore(client, "test-mmstore", fmt.Sprintf("run-%d/", time.Now().UnixNano()))

	meta, err := record.ParseYAML([]byte(`
- {name: id, tag: 0, type: uint64}
- {name: tags, tag: 1, type: uint16, count: 0}
`))
	require.NoError(t, err)

	src := t.TempDir()

	users, err := kv.Open[uint64](src, meta, kv.WithMaxKeys(128), kv.WithMaxSize(1<<22))
	require.NoError(t, err)

	for id := range uint64(50) {
		rec, err := users.NewRecord()
		require.NoError(t, err)
		require.NoError(t, record.SetField(rec, 0, id))
		require.NoError(t, rec.BuildVarArray(1, 3))
		require.NoError(t, record.SetFieldAt(rec, 1, 2, uint16(id*7)))
		require.NoError(t, users.Insert(id, id))
		require.NoError(t, users.Add(id, rec))
	}

	require.NoError(t, users.Dump())
	require.NoError(t, users.Close())

	manifest, err := snapshot.Export(ctx, src, store, "nightly", snapshot.WithCompression(snapshot.CompressionNone))
	require.NoError(t, err)

	t.Cleanup(func() { _ = snapshot.Delete(context.Background(), store, "nightly") })

	t.Run("Layout", func(t *testing.T) {
		names, err := store.List(ctx, "nightly/")
		require.NoError(t, err)
		assert.Len(t, names, len(manifest.Files)+1)
		assert.Contains(t, names, path.Join("nightly", snapshot.ManifestName))
	})

	t.Run("RegionRange", func(t *testing.T) {
		want, err := os.ReadFile(filepath.Join(src, kv.KeysFile))
		require.NoError(t, err)

		blob, err := store.Open(ctx, path.Join("nightly", kv.KeysFile))
		require.NoError(t, err)
		defer blob.Close()

		rc, err := blob.ReadRange(ctx, 8, 32)
		require.NoError(t, err)

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want[8:40], got)
	})

	t.Run("Import", func(t *testing.T) {
		dst := t.TempDir()
		_, err := snapshot.Import(ctx, store, "nightly", dst)
		require.NoError(t, err)

		restored, err := kv.Open[uint64](dst, meta, kv.WithReadOnly())
		require.NoError(t, err)
		defer restored.Close()

		rec, ok := restored.Lookup(9)
		require.True(t, ok)

		tag, err := record.GetFieldAt[uint16](rec, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, uint16(63), tag)
	})

	t.Run("AbortedUploadIsInvisible", func(t *testing.T) {
		w, err := store.Create(ctx, "nightly/partial")
		require.NoError(t, err)

		_, err = w.Write([]byte("half a region"))
		require.NoError(t, err)
		require.NoError(t, w.(blobstore.Aborter).Abort(ctx))

		_, err = store.Open(ctx, "nightly/partial")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("DeleteRemovesManifest", func(t *testing.T) {
		require.NoError(t, snapshot.Delete(ctx, store, "nightly"))

		_, err := snapshot.Load(ctx, store, "nightly")
		assert.ErrorIs(t, err, snapshot.ErrNoManifest)
	})
}
