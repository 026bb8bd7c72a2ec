package vlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
)

func TestManagerPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, 1_000_000_000, defaultConfig(), nil)
	require.NoError(t, err)
	defer m.Close()

	ptr, err := m.Put(codec.Entry{Key: []byte("king"), Value: []byte("queen")})
	require.NoError(t, err)

	got, err := m.Get(ptr)
	require.NoError(t, err)
	require.Equal(t, []byte("queen"), got.Value)
}

func TestManagerRolloverCreatesNewSegment(t *testing.T) {
	dir := t.TempDir()
	conf := defaultConfig()
	conf.MemBufSize = 64
	m, err := Open(dir, 256, conf, nil)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 100; i++ {
		_, err := m.Put(codec.Entry{Key: []byte{byte(i)}, Value: make([]byte, 32)})
		require.NoError(t, err)
	}
	require.Greater(t, m.SegmentCount(), 1)
}

func TestManagerMissingSegment(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, 1_000_000_000, defaultConfig(), nil)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Get(dp.DataPointer{SegmentID: 99})
	require.Error(t, err)
	var missing *ErrMissingSegment
	require.ErrorAs(t, err, &missing)
}

func TestManagerGCCandidateFloor(t *testing.T) {
	dir := t.TempDir()
	conf := defaultConfig()
	m, err := Open(dir, 1, conf, nil) // tiny max size forces rollover on every put
	require.NoError(t, err)
	defer m.Close()

	_, _, ok := m.GCCandidate()
	require.False(t, ok, "fewer than 4 segments must not offer a GC candidate")

	for i := 0; i < 10; i++ {
		_, err := m.Put(codec.Entry{Key: []byte{byte(i)}, Value: []byte("v")})
		require.NoError(t, err)
	}
	require.Greater(t, m.SegmentCount(), gcCandidateFloor)

	id, path, ok := m.GCCandidate()
	require.True(t, ok)
	require.NotEmpty(t, path)
	require.Equal(t, uint64(1), id, "GC candidate must be the smallest id")
}

func TestManagerSyncPersistsRoster(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, 1_000_000_000, defaultConfig(), nil)
	require.NoError(t, err)

	_, err = m.Put(codec.Entry{Key: []byte("a"), Value: []byte("b")})
	require.NoError(t, err)
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	m2, err := Open(dir, 1_000_000_000, defaultConfig(), nil)
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, 1, m2.SegmentCount())
}

func TestManagerDropVlogRemovesFile(t *testing.T) {
	dir := t.TempDir()
	conf := defaultConfig()
	m, err := Open(dir, 1, conf, nil)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 10; i++ {
		_, err := m.Put(codec.Entry{Key: []byte{byte(i)}, Value: []byte("v")})
		require.NoError(t, err)
	}
	id, path, ok := m.GCCandidate()
	require.True(t, ok)
	require.NoError(t, m.DropVlog(id))
	require.NoFileExists(t, path)
	_, err = m.Get(dp.DataPointer{SegmentID: id})
	require.Error(t, err)
}
