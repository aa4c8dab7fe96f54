package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmstore/memory"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func dumpedRegion(t *testing.T, path string, n uint64) {
	t.Helper()

	m, err := memory.OpenMMap(path, memory.WithMaxSize(1<<20))
	require.NoError(t, err)

	_, err = m.Allocate(n)
	require.NoError(t, err)
	require.NoError(t, m.Dump())
	require.NoError(t, m.Close())
}

func TestMetaCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys")
	dumpedRegion(t, path, 100)

	out, err := run(t, "meta", path, path+memory.MetaSuffix)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ALLOCATED")
	assert.Contains(t, lines[1], "mmap")

	_, err = run(t, "meta", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSchemaCmd(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- {name: id, tag: 0, type: uint64}
- {name: active, tag: 1, type: bool}
- {name: name, tag: 2, type: string}
`), 0o644))

	out, err := run(t, "schema", yamlPath)
	require.NoError(t, err)
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "record size:")

	jsonPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"name":"id","tag":0,"type":"complex"}]`), 0o644))

	_, err = run(t, "schema", jsonPath)
	assert.Error(t, err)
}

func TestExportImportCmd(t *testing.T) {
	src := t.TempDir()
	dumpedRegion(t, filepath.Join(src, "keys"), 4096)
	dumpedRegion(t, filepath.Join(src, "chunks"), 512)

	storeDir := t.TempDir()

	out, err := run(t, "export", src, "nightly", "--store", storeDir, "--compression", "lz4", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 4 files")
	assert.Contains(t, out, `mmstore_operation_latency_seconds{component="snapshot",op="export",status="ok"} count=1`)

	out, err = run(t, "manifest", "nightly", "--store", "file://"+storeDir)
	require.NoError(t, err)
	assert.Contains(t, out, "keys.meta")

	dst := t.TempDir()
	out, err = run(t, "import", "nightly", dst, "--store", storeDir)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 4 files")

	meta, err := memory.LoadMeta(filepath.Join(dst, "keys"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, meta.Allocated, uint64(4096))

	_, err = run(t, "export", src, "x", "--store", storeDir, "--compression", "brotli")
	assert.Error(t, err)

	_, err = run(t, "import", "nightly", dst)
	assert.Error(t, err)
}

func TestParseStore(t *testing.T) {
	loc, err := parseStore("/var/backups")
	require.NoError(t, err)
	assert.Equal(t, storeLocation{scheme: "file", path: "/var/backups"}, loc)

	loc, err = parseStore("file:///var/backups")
	require.NoError(t, err)
	assert.Equal(t, "/var/backups", loc.path)

	loc, err = parseStore("s3://bucket/snapshots/users?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "bucket", loc.bucket)
	assert.Equal(t, "snapshots/users", loc.prefix)
	assert.Equal(t, "eu-west-1", loc.query.Get("region"))

	loc, err = parseStore("minio://localhost:9000/bucket/snap?secure=true")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", loc.host)
	assert.Equal(t, "bucket", loc.bucket)
	assert.Equal(t, "snap", loc.prefix)

	for _, bad := range []string{"", "gs://bucket", "s3:///prefix", "minio://host/", "file://"} {
		_, err := parseStore(bad)
		assert.Error(t, err, bad)
	}
}
