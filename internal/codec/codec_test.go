package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEntryRoundTrip(t *testing.T) {
	cases := []Entry{
		{Key: []byte("king"), Value: []byte("queen")},
		{Key: []byte{}, Value: []byte{}},
		{Key: []byte("man"), Value: make([]byte, 4096)},
	}
	for _, want := range cases {
		enc, err := EncodeEntry(want)
		require.NoError(t, err)
		got, err := DecodeEntry(enc)
		require.NoError(t, err)
		if diff := cmp.Diff(want.Key, got.Key); diff != "" {
			t.Errorf("key mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want.Value, got.Value); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeEntryTruncated(t *testing.T) {
	enc, err := EncodeEntry(Entry{Key: []byte("k"), Value: []byte("v")})
	require.NoError(t, err)
	_, err = DecodeEntry(enc[:len(enc)-1])
	require.Error(t, err)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	raw, err := EncodeEntry(Entry{Key: []byte("hello"), Value: []byte("world")})
	require.NoError(t, err)
	compressed := Compress(raw)
	out, err := Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, raw, out)
}

func TestEncodeEntryCompressedRoundTrip(t *testing.T) {
	e := Entry{Key: []byte("man"), Value: []byte("woman")}

	payload, compressed, err := EncodeEntryCompressed(e, true)
	require.NoError(t, err)
	require.True(t, compressed)
	got, err := DecodeEntryCompressed(payload, compressed)
	require.NoError(t, err)
	require.Equal(t, e, got)

	payload, compressed, err = EncodeEntryCompressed(e, false)
	require.NoError(t, err)
	require.False(t, compressed)
	got, err = DecodeEntryCompressed(payload, compressed)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := Decompress([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestUint64SliceRoundTrip(t *testing.T) {
	ids := []uint64{1, 2, 3, 1000000}
	enc := EncodeUint64Slice(ids)
	got, err := DecodeUint64Slice(enc)
	require.NoError(t, err)
	require.Equal(t, ids, got)
}

func TestUint64SliceEmpty(t *testing.T) {
	enc := EncodeUint64Slice(nil)
	got, err := DecodeUint64Slice(enc)
	require.NoError(t, err)
	require.Empty(t, got)
}
