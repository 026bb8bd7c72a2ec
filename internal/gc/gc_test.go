package gc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
	"github.com/wisckv/wisckv/internal/vlog"
)

type fakeIndex map[string]dp.DataPointer

func (f fakeIndex) Get(key []byte) (dp.DataPointer, bool) {
	ptr, ok := f[string(key)]
	return ptr, ok
}

func writeSegment(t *testing.T, path string, entries []codec.Entry) []dp.DataPointer {
	t.Helper()
	v, err := vlog.OpenSegment(path, 1, vlog.Config{MemBufEnabled: true, MemBufSize: 8_000_000, Compress: true}, nil)
	require.NoError(t, err)
	var ptrs []dp.DataPointer
	for _, e := range entries {
		ptr, err := v.Put(e)
		require.NoError(t, err)
		ptrs = append(ptrs, ptr)
	}
	require.NoError(t, v.Close())
	return ptrs
}

func TestWorkerSkipsStaleReturnsLive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.vlog")
	entries := []codec.Entry{
		{Key: []byte("deleted"), Value: []byte("v1")},
		{Key: []byte("moved"), Value: []byte("v2")},
		{Key: []byte("live"), Value: []byte("v3")},
	}
	ptrs := writeSegment(t, path, entries)

	idx := fakeIndex{
		// "deleted" absent entirely.
		"moved": dp.DataPointer{SegmentID: 2, Offset: 999}, // points elsewhere now
		"live":  ptrs[2],                                   // still points at this frame
	}

	w, err := NewWorker(1, path)
	require.NoError(t, err)
	defer w.Close()

	e, ok, err := w.Step(idx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "live", string(e.Key))

	_, ok, err = w.Step(idx)
	require.NoError(t, err)
	require.False(t, ok, "segment must report drained after its only live record")
}

func TestWorkerDrainedOnEmptySegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.vlog")
	writeSegment(t, path, nil)

	w, err := NewWorker(1, path)
	require.NoError(t, err)
	defer w.Close()

	_, ok, err := w.Step(fakeIndex{})
	require.NoError(t, err)
	require.False(t, ok)
}
