// Package dp implements DataPointer, the fixed-width record that locates
// a DataEntry payload inside a vlog segment.
package dp

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed on-disk width of an encoded DataPointer: segment_id
// (u64) + offset (u64) + length (u32) + compressed (u8). This constant is
// load-bearing: segment parsers read exactly Size bytes to locate frame
// boundaries.
const Size = 21

// DataPointer locates a DataEntry payload inside a vlog segment.
type DataPointer struct {
	SegmentID  uint64
	Offset     uint64
	Length     uint32
	Compressed bool
}

// Less orders pointers by (SegmentID, Offset), matching the comparability
// invariant in spec.md §3.
func (p DataPointer) Less(other DataPointer) bool {
	if p.SegmentID != other.SegmentID {
		return p.SegmentID < other.SegmentID
	}
	return p.Offset < other.Offset
}

// Encode serializes p into exactly Size bytes, little-endian fixed-width,
// no length prefix.
func Encode(p DataPointer) []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint64(buf[0:8], p.SegmentID)
	binary.LittleEndian.PutUint64(buf[8:16], p.Offset)
	binary.LittleEndian.PutUint32(buf[16:20], p.Length)
	if p.Compressed {
		buf[20] = 1
	}
	return buf
}

// Decode parses exactly Size bytes into a DataPointer.
func Decode(b []byte) (DataPointer, error) {
	if len(b) != Size {
		return DataPointer{}, fmt.Errorf("dp: decode: expected %d bytes, got %d", Size, len(b))
	}
	return DataPointer{
		SegmentID:  binary.LittleEndian.Uint64(b[0:8]),
		Offset:     binary.LittleEndian.Uint64(b[8:16]),
		Length:     binary.LittleEndian.Uint32(b[16:20]),
		Compressed: b[20] != 0,
	}, nil
}
