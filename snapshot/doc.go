// Package snapshot copies dumped region directories to and from a
// blobstore.BlobStore.
//
// Export uploads every file under a directory (region data files, their
// sidecars, index descriptors) below a prefix, compressed, followed by a
// MANIFEST.json that records the raw size and CRC32C of each file. A
// snapshot without a manifest is incomplete and Import refuses it.
//
//	store := blobstore.NewLocalStore("/backups")
//	m, err := snapshot.Export(ctx, "/var/lib/mmstore/users", store, "users/2026-10-18",
//	    snapshot.WithCompression(snapshot.CompressionZstd),
//	    snapshot.WithBytesPerSec(32<<20),
//	)
//
// Regions must be dumped (and ideally closed) before export: Export reads
// files as they are on disk.
package snapshot
