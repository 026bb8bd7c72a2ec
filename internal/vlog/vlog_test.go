package vlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wisckv/wisckv/internal/codec"
)

func defaultConfig() Config {
	return Config{MemBufEnabled: true, MemBufSize: 8_000_000, Sync: false, Compress: true}
}

func TestVlogPutGetBuffered(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenSegment(filepath.Join(dir, "1.vlog"), 1, defaultConfig(), nil)
	require.NoError(t, err)
	defer v.Close()

	ptr, err := v.Put(codec.Entry{Key: []byte("king"), Value: []byte("queen")})
	require.NoError(t, err)

	got, err := v.Get(ptr)
	require.NoError(t, err)
	require.Equal(t, []byte("king"), got.Key)
	require.Equal(t, []byte("queen"), got.Value)
}

func TestVlogFlushThenGetFromDisk(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenSegment(filepath.Join(dir, "1.vlog"), 1, defaultConfig(), nil)
	require.NoError(t, err)
	defer v.Close()

	ptr, err := v.Put(codec.Entry{Key: []byte("man"), Value: []byte("woman")})
	require.NoError(t, err)
	require.NoError(t, v.Flush())

	got, err := v.Get(ptr)
	require.NoError(t, err)
	require.Equal(t, []byte("woman"), got.Value)
}

func TestVlogBufferOrderGapFree(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenSegment(filepath.Join(dir, "1.vlog"), 1, defaultConfig(), nil)
	require.NoError(t, err)
	defer v.Close()

	var ptrs []uint64
	for i := 0; i < 50; i++ {
		ptr, err := v.Put(codec.Entry{Key: []byte{byte(i)}, Value: make([]byte, 100)})
		require.NoError(t, err)
		ptrs = append(ptrs, ptr.Offset)
	}
	for i := 1; i < len(ptrs); i++ {
		require.Greater(t, ptrs[i], ptrs[i-1])
	}
	require.NoError(t, v.Flush())
}

func TestVlogSyncBypassesBuffer(t *testing.T) {
	dir := t.TempDir()
	conf := defaultConfig()
	conf.Sync = true
	v, err := OpenSegment(filepath.Join(dir, "1.vlog"), 1, conf, nil)
	require.NoError(t, err)
	defer v.Close()

	ptr, err := v.Put(codec.Entry{Key: []byte("a"), Value: []byte("b")})
	require.NoError(t, err)
	require.Empty(t, v.buf, "sync writes should bypass the memory buffer")

	got, err := v.Get(ptr)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), got.Value)
}

func TestVlogReopenAtEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.vlog")
	v, err := OpenSegment(path, 1, defaultConfig(), nil)
	require.NoError(t, err)
	_, err = v.Put(codec.Entry{Key: []byte("hello"), Value: []byte("world")})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	v2, err := OpenSegment(path, 1, defaultConfig(), nil)
	require.NoError(t, err)
	defer v2.Close()
	require.Equal(t, v.Size(), v2.Size())
}

func TestVlogSequentialReaderMatchesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.vlog")
	v, err := OpenSegment(path, 1, defaultConfig(), nil)
	require.NoError(t, err)

	entries := []codec.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	for _, e := range entries {
		_, err := v.Put(e)
		require.NoError(t, err)
	}
	require.NoError(t, v.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []codec.Entry
	for {
		_, e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e)
	}
	require.Len(t, got, len(entries))
	for i, e := range entries {
		require.Equal(t, e.Key, got[i].Key)
		require.Equal(t, e.Value, got[i].Value)
	}
}

func TestVlogDeactivateRemovesFileOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.vlog")
	v, err := OpenSegment(path, 1, defaultConfig(), nil)
	require.NoError(t, err)
	_, err = v.Put(codec.Entry{Key: []byte("x"), Value: []byte("y")})
	require.NoError(t, err)
	require.NoError(t, v.Flush())

	v.Deactivate()
	require.NoError(t, v.Close())
	require.NoFileExists(t, path)
}
