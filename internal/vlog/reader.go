package vlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
)

// Reader is a lazy, single-pass sequential scanner over one segment
// file, independent of any Vlog write buffer. It is used both by GC (to
// sweep a retiring segment) and would be used by any future replay tool.
type Reader struct {
	f   *os.File
	r   *bufio.Reader
	err error
}

// OpenReader opens path for sequential scanning. The returned Reader
// owns an independent file handle — the caller may keep a Vlog's own
// handles open on the same segment concurrently.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vlog: open reader %s: %w", path, err)
	}
	return &Reader{f: f, r: bufio.NewReaderSize(f, 64*1024)}, nil
}

// Next reads the next frame. It returns ok == false and err == nil at a
// clean end-of-segment (EOF exactly at a frame boundary); any other
// short read is reported as ErrVlogCorrupt.
func (r *Reader) Next() (ptr dp.DataPointer, entry codec.Entry, ok bool, err error) {
	if r.err != nil {
		return dp.DataPointer{}, codec.Entry{}, false, r.err
	}

	header := make([]byte, dp.Size)
	if _, err := io.ReadFull(r.r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return dp.DataPointer{}, codec.Entry{}, false, nil
		}
		r.err = fmt.Errorf("%w: short read on frame header: %v", ErrVlogCorrupt, err)
		return dp.DataPointer{}, codec.Entry{}, false, r.err
	}

	ptr, err = dp.Decode(header)
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrVlogCorrupt, err)
		return dp.DataPointer{}, codec.Entry{}, false, r.err
	}

	payload := make([]byte, ptr.Length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		r.err = fmt.Errorf("%w: short read on frame payload: %v", ErrVlogCorrupt, err)
		return dp.DataPointer{}, codec.Entry{}, false, r.err
	}

	entry, err = codec.DecodeEntryCompressed(payload, ptr.Compressed)
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrVlogCorrupt, err)
		return dp.DataPointer{}, codec.Entry{}, false, r.err
	}

	return ptr, entry, true, nil
}

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
