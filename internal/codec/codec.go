// Package codec implements the byte serialization used for DataEntry
// records, plus the per-entry Snappy compression wrapper. DataPointer has
// its own fixed-width codec in package dp, since its 21-byte width is a
// load-bearing wire format constant distinct from DataEntry's
// length-prefixed framing.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// Entry is the {key, value} byte pair persisted inside a vlog frame.
type Entry struct {
	Key   []byte
	Value []byte
}

// ErrEncodeFailed wraps a failure to serialize an Entry.
var ErrEncodeFailed = fmt.Errorf("codec: encode failed")

// ErrDecodeFailed wraps a failure to deserialize an Entry.
var ErrDecodeFailed = fmt.Errorf("codec: decode failed")

// ErrDecompressFailed wraps a Snappy decompression failure.
var ErrDecompressFailed = fmt.Errorf("codec: decompress failed")

// EncodeEntry produces the raw (uncompressed) wire representation of e:
// a 4-byte little-endian length prefix followed by the key, then a 4-byte
// little-endian length prefix followed by the value.
func EncodeEntry(e Entry) ([]byte, error) {
	if len(e.Key) > 1<<32-1 || len(e.Value) > 1<<32-1 {
		return nil, fmt.Errorf("%w: key or value too large", ErrEncodeFailed)
	}
	buf := make([]byte, 4+len(e.Key)+4+len(e.Value))
	n := 0
	binary.LittleEndian.PutUint32(buf[n:n+4], uint32(len(e.Key)))
	n += 4
	n += copy(buf[n:], e.Key)
	binary.LittleEndian.PutUint32(buf[n:n+4], uint32(len(e.Value)))
	n += 4
	n += copy(buf[n:], e.Value)
	return buf[:n], nil
}

// DecodeEntry parses the raw (uncompressed) wire representation produced
// by EncodeEntry.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < 4 {
		return Entry{}, fmt.Errorf("%w: short buffer", ErrDecodeFailed)
	}
	klen := int(binary.LittleEndian.Uint32(b[0:4]))
	if 4+klen+4 > len(b) {
		return Entry{}, fmt.Errorf("%w: key length out of range", ErrDecodeFailed)
	}
	key := b[4 : 4+klen]
	rest := b[4+klen:]

	vlen := int(binary.LittleEndian.Uint32(rest[0:4]))
	if 4+vlen > len(rest) {
		return Entry{}, fmt.Errorf("%w: value length out of range", ErrDecodeFailed)
	}
	value := rest[4 : 4+vlen]

	// Copy out of the shared read buffer so callers may reuse it.
	out := Entry{Key: append([]byte{}, key...), Value: append([]byte{}, value...)}
	return out, nil
}

// Compress wraps raw bytes with a Snappy block. Compression is applied
// per-DataEntry, never per-segment.
func Compress(raw []byte) []byte {
	return snappy.Encode(nil, raw)
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	dst := make([]byte, n)
	out, err := snappy.Decode(dst, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

// EncodeEntryCompressed encodes e and, if compress is true, wraps the
// result in a Snappy block. It returns the payload bytes to persist and
// whether they are compressed.
func EncodeEntryCompressed(e Entry, compress bool) (payload []byte, compressed bool, err error) {
	raw, err := EncodeEntry(e)
	if err != nil {
		return nil, false, err
	}
	if !compress {
		return raw, false, nil
	}
	return Compress(raw), true, nil
}

// DecodeEntryCompressed reverses EncodeEntryCompressed given the
// compressed flag carried alongside the payload (e.g. in a DataPointer).
func DecodeEntryCompressed(payload []byte, compressed bool) (Entry, error) {
	raw := payload
	if compressed {
		var err error
		raw, err = Decompress(payload)
		if err != nil {
			return Entry{}, err
		}
	}
	return DecodeEntry(raw)
}

// EncodeUint64Slice serializes a slice of uint64 (ascending segment ids,
// for the roster file) as a 4-byte count followed by 8-byte big-endian
// values, then wraps the whole thing in a Snappy block.
func EncodeUint64Slice(ids []uint64) []byte {
	raw := make([]byte, 4+8*len(ids))
	binary.BigEndian.PutUint32(raw[0:4], uint32(len(ids)))
	for i, id := range ids {
		binary.BigEndian.PutUint64(raw[4+8*i:4+8*i+8], id)
	}
	return Compress(raw)
}

// DecodeUint64Slice reverses EncodeUint64Slice.
func DecodeUint64Slice(compressed []byte) ([]uint64, error) {
	if len(compressed) == 0 {
		return nil, nil
	}
	raw, err := Decompress(compressed)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: roster header too short", ErrDecodeFailed)
	}
	count := int(binary.BigEndian.Uint32(raw[0:4]))
	if 4+8*count != len(raw) {
		return nil, fmt.Errorf("%w: roster length mismatch", ErrDecodeFailed)
	}
	ids := make([]uint64, count)
	for i := range ids {
		ids[i] = binary.BigEndian.Uint64(raw[4+8*i : 4+8*i+8])
	}
	return ids, nil
}
