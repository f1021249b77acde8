package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/storage"
	"github.com/leafmind/leafmind-go/pkg/storage/sqlite"
)

func openTestEngine(t *testing.T) *sqlite.Engine {
	t.Helper()
	engine, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEnginePutGetDelete(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, ok, err := e.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.Put(ctx, "k1", []byte("v1")))
	value, ok, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	// Overwrite.
	require.NoError(t, e.Put(ctx, "k1", []byte("v2")))
	value, _, _ = e.Get(ctx, "k1")
	assert.Equal(t, []byte("v2"), value)

	require.NoError(t, e.Delete(ctx, "k1"))
	_, ok, err = e.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, e.Delete(ctx, "k1"))
}

func TestEngineApplyBatch(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, "stale", []byte("x")))

	ops := []storage.Op{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "stale", Delete: true},
	}
	require.NoError(t, e.ApplyBatch(ctx, ops))

	_, ok, _ := e.Get(ctx, "stale")
	assert.False(t, ok)
	v, _, _ := e.Get(ctx, "a")
	assert.Equal(t, []byte("1"), v)

	n, err := e.KeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, e.ApplyBatch(ctx, nil), "empty batch is a no-op")
}

func TestEngineScanPrefixOrdered(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, "concept:b", []byte("2")))
	require.NoError(t, e.Put(ctx, "concept:a", []byte("1")))
	require.NoError(t, e.Put(ctx, "concept:c", []byte("3")))
	require.NoError(t, e.Put(ctx, "st_edge:x", []byte("e")))

	var keys []string
	err := e.Scan(ctx, "concept:", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"concept:a", "concept:b", "concept:c"}, keys,
		"prefix scan is ordered and scoped")

	var all []string
	require.NoError(t, e.Scan(ctx, "", func(key string, _ []byte) error {
		all = append(all, key)
		return nil
	}))
	assert.Len(t, all, 4)
}

func TestEngineBackupRestore(t *testing.T) {
	dir := t.TempDir()
	e, err := sqlite.Open(filepath.Join(dir, "main.db"), true)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, "keep", []byte("original")))

	snap := filepath.Join(dir, "snap.db")
	require.NoError(t, e.Backup(ctx, snap))

	// Diverge after the snapshot.
	require.NoError(t, e.Put(ctx, "extra", []byte("later")))
	require.NoError(t, e.Put(ctx, "keep", []byte("changed")))

	require.NoError(t, e.Restore(ctx, snap))

	v, ok, err := e.Get(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), v)

	_, ok, _ = e.Get(ctx, "extra")
	assert.False(t, ok, "post-snapshot writes are gone after restore")
}

func TestEngineRestoreInvalidSnapshotKeepsState(t *testing.T) {
	dir := t.TempDir()
	e, err := sqlite.Open(filepath.Join(dir, "main.db"), true)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, "k", []byte("v")))

	bogus := filepath.Join(dir, "bogus.db")
	require.NoError(t, os.WriteFile(bogus, []byte("not a database"), 0o644))

	err = e.Restore(ctx, bogus)
	assert.Error(t, err)

	v, ok, gerr := e.Get(ctx, "k")
	require.NoError(t, gerr)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v, "failed restore leaves the previous state visible")
}

func TestEngineCompactAndSize(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, e.Put(ctx, "k"+string(rune('0'+i%10))+string(rune('a'+i/10)), make([]byte, 512)))
	}
	require.NoError(t, e.Compact(ctx))

	size, err := e.SizeBytes()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
