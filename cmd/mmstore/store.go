package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/mmstore/blobstore"
	minioblob "github.com/hupe1980/mmstore/blobstore/minio"
	s3blob "github.com/hupe1980/mmstore/blobstore/s3"
)

// storeLocation is a parsed --store value.
type storeLocation struct {
	scheme string // file, s3 or minio
	host   string // minio endpoint
	bucket string
	prefix string
	path   string // file root
	query  url.Values
}

// parseStore accepts a local path, file://path, s3://bucket/prefix or
// minio://host:port/bucket/prefix.
func parseStore(raw string) (storeLocation, error) {
	if raw == "" {
		return storeLocation{}, fmt.Errorf("store location is required")
	}

	if !strings.Contains(raw, "://") {
		return storeLocation{scheme: "file", path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return storeLocation{}, fmt.Errorf("invalid store location %q: %w", raw, err)
	}

	loc := storeLocation{scheme: u.Scheme, query: u.Query()}

	switch u.Scheme {
	case "file":
		loc.path = u.Host + u.Path
	case "s3":
		loc.bucket = u.Host
		loc.prefix = strings.TrimPrefix(u.Path, "/")
	case "minio":
		loc.host = u.Host
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		loc.bucket = parts[0]
		if len(parts) == 2 {
			loc.prefix = parts[1]
		}
	default:
		return storeLocation{}, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}

	if loc.scheme != "file" && loc.bucket == "" {
		return storeLocation{}, fmt.Errorf("store location %q has no bucket", raw)
	}

	if loc.scheme == "file" && loc.path == "" {
		return storeLocation{}, fmt.Errorf("store location %q has no path", raw)
	}

	return loc, nil
}

func openStore(ctx context.Context, raw string) (blobstore.BlobStore, error) {
	loc, err := parseStore(raw)
	if err != nil {
		return nil, err
	}

	switch loc.scheme {
	case "s3":
		return s3blob.New(ctx, loc.bucket,
			s3blob.WithPrefix(loc.prefix),
			s3blob.WithRegion(loc.query.Get("region")),
			s3blob.WithEndpoint(loc.query.Get("endpoint")),
		)
	case "minio":
		secure, _ := strconv.ParseBool(loc.query.Get("secure"))

		client, err := minio.New(loc.host, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: secure,
			Region: loc.query.Get("region"),
		})
		if err != nil {
			return nil, err
		}

		return minioblob.NewStore(client, loc.bucket, loc.prefix), nil
	default:
		return blobstore.NewLocalStore(loc.path), nil
	}
}
