// Package minio stores snapshot blobs on MinIO and other S3-compatible
// servers (Ceph, SeaweedFS, Garage) through the MinIO Go client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "snapshots/")
//	err = snapshot.Export(ctx, "/var/lib/mmstore", store, "nightly")
package minio
