// Package vlog implements the value-log subsystem: append-only segment
// files holding framed (DataPointer, DataEntry) records, a write buffer,
// a sequential scanner, and the manager that routes writes to the
// current tail and tracks the segment roster.
package vlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
)

// ErrVlogCorrupt is returned when a sequential scan hits a short read
// mid-frame (anywhere other than a clean EOF at a frame boundary).
var ErrVlogCorrupt = fmt.Errorf("vlog: corrupt segment")

// Config carries the subset of Options a single Vlog needs.
type Config struct {
	MemBufEnabled bool
	MemBufSize    int
	Sync          bool
	Compress      bool
}

// bufEntry is one buffered (not yet flushed) frame, kept in ascending
// offset order.
type bufEntry struct {
	ptr     dp.DataPointer
	payload []byte
}

// Vlog is one append-only segment file.
type Vlog struct {
	id    uint64
	path  string
	wf    *os.File
	rf    *os.File
	w     *bufio.Writer
	conf  Config
	log   *zap.Logger
	active bool

	writeOffset uint64
	buf         []bufEntry
	bufBytes    int
}

// OpenSegment opens (creating if necessary) the segment file at path
// with the given id and configuration. The write handle is positioned at
// EOF; no header or footer is read or written.
func OpenSegment(path string, id uint64, conf Config, log *zap.Logger) (*Vlog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	wf, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("vlog: open write handle %s: %w", path, err)
	}
	off, err := wf.Seek(0, io.SeekEnd)
	if err != nil {
		wf.Close()
		return nil, fmt.Errorf("vlog: seek to EOF %s: %w", path, err)
	}
	rf, err := os.Open(path)
	if err != nil {
		wf.Close()
		return nil, fmt.Errorf("vlog: open read handle %s: %w", path, err)
	}
	return &Vlog{
		id:          id,
		path:        path,
		wf:          wf,
		rf:          rf,
		w:           bufio.NewWriterSize(wf, 64*1024),
		conf:        conf,
		log:         log.With(zap.Uint64("segment", id)),
		active:      true,
		writeOffset: uint64(off),
	}, nil
}

// ID returns the segment id.
func (v *Vlog) ID() uint64 { return v.id }

// Path returns the on-disk path of the segment.
func (v *Vlog) Path() string { return v.path }

// Size returns the current logical length of the segment (bytes written
// or buffered, not yet necessarily fsync'd).
func (v *Vlog) Size() uint64 { return v.writeOffset }

// Put serializes e, frames it, and returns the DataPointer describing
// where the frame lives — whether still buffered in memory or already on
// disk. If the configured write buffer is disabled or Config.Sync is
// true, the frame is written directly and flushed.
func (v *Vlog) Put(e codec.Entry) (dp.DataPointer, error) {
	if !v.active {
		return dp.DataPointer{}, fmt.Errorf("vlog: segment %d is inactive", v.id)
	}
	payload, compressed, err := codec.EncodeEntryCompressed(e, v.conf.Compress)
	if err != nil {
		return dp.DataPointer{}, fmt.Errorf("vlog: encode entry: %w", err)
	}

	if !v.conf.MemBufEnabled || v.conf.Sync {
		ptr, err := v.writeFrame(payload, compressed)
		if err != nil {
			return dp.DataPointer{}, err
		}
		if err := v.w.Flush(); err != nil {
			return dp.DataPointer{}, fmt.Errorf("vlog: flush: %w", err)
		}
		if v.conf.Sync {
			if err := v.wf.Sync(); err != nil {
				return dp.DataPointer{}, fmt.Errorf("vlog: fsync: %w", err)
			}
		}
		return ptr, nil
	}

	entrySize := dp.Size + len(payload)
	if v.bufBytes+entrySize > v.conf.MemBufSize {
		if err := v.Flush(); err != nil {
			return dp.DataPointer{}, err
		}
	}

	ptr := dp.DataPointer{
		SegmentID:  v.id,
		Offset:     v.writeOffset + dp.Size,
		Length:     uint32(len(payload)),
		Compressed: compressed,
	}
	v.writeOffset += uint64(entrySize)
	v.buf = append(v.buf, bufEntry{ptr: ptr, payload: payload})
	v.bufBytes += entrySize

	if debugAssertions {
		assertBufOrdered(v.buf)
	}

	return ptr, nil
}

// Get resolves dp to its DataEntry, checking the write buffer first and
// falling back to disk.
func (v *Vlog) Get(ptr dp.DataPointer) (codec.Entry, error) {
	if payload, ok := v.getFromBuf(ptr); ok {
		return codec.DecodeEntryCompressed(payload, ptr.Compressed)
	}

	buf := make([]byte, ptr.Length)
	if _, err := v.rf.Seek(int64(ptr.Offset), io.SeekStart); err != nil {
		return codec.Entry{}, fmt.Errorf("vlog: seek for read: %w", err)
	}
	if _, err := io.ReadFull(v.rf, buf); err != nil {
		return codec.Entry{}, fmt.Errorf("vlog: short read at offset %d: %w", ptr.Offset, err)
	}
	return codec.DecodeEntryCompressed(buf, ptr.Compressed)
}

func (v *Vlog) getFromBuf(ptr dp.DataPointer) ([]byte, bool) {
	i := sort.Search(len(v.buf), func(i int) bool {
		return v.buf[i].ptr.Offset >= ptr.Offset
	})
	if i < len(v.buf) && v.buf[i].ptr.Offset == ptr.Offset {
		return v.buf[i].payload, true
	}
	return nil, false
}

// Flush writes every buffered frame to disk in ascending offset order,
// gap-free, then fsyncs and clears the buffer.
//
// The expected write position for the gap check is tracked with a local
// cursor seeded from the first buffered frame's own offset, not
// v.writeOffset: Put already advances v.writeOffset past the whole
// pending buffer the moment a frame is buffered, so by the time Flush
// runs it describes the offset one past the *last* buffered frame, not
// the writer's actual on-disk position.
func (v *Vlog) Flush() error {
	if len(v.buf) == 0 {
		return nil
	}
	buffered := v.buf
	v.buf = nil
	v.bufBytes = 0

	cursor := buffered[0].ptr.Offset - dp.Size
	for _, item := range buffered {
		if debugAssertions && item.ptr.Offset-dp.Size != cursor {
			return fmt.Errorf("vlog: gap in segment %d: writer at %d, frame expects %d",
				v.id, cursor, item.ptr.Offset-dp.Size)
		}
		if _, err := v.w.Write(dp.Encode(item.ptr)); err != nil {
			return fmt.Errorf("vlog: write frame header: %w", err)
		}
		if _, err := v.w.Write(item.payload); err != nil {
			return fmt.Errorf("vlog: write frame payload: %w", err)
		}
		cursor = item.ptr.Offset + uint64(len(item.payload))
	}
	if err := v.w.Flush(); err != nil {
		return fmt.Errorf("vlog: flush buffered frames: %w", err)
	}
	if err := v.wf.Sync(); err != nil {
		return fmt.Errorf("vlog: fsync after flush: %w", err)
	}
	return nil
}

// writeFrame appends one fresh frame directly to the buffered writer,
// computing its DataPointer from the current write offset and advancing
// it. Used only by the unbuffered (or Config.Sync-forced) path in Put;
// buffered frames already carry their own DataPointer and are written by
// Flush instead, which tracks its own cursor.
func (v *Vlog) writeFrame(payload []byte, compressed bool) (dp.DataPointer, error) {
	out := dp.DataPointer{
		SegmentID:  v.id,
		Offset:     v.writeOffset + dp.Size,
		Length:     uint32(len(payload)),
		Compressed: compressed,
	}

	if _, err := v.w.Write(dp.Encode(out)); err != nil {
		return dp.DataPointer{}, fmt.Errorf("vlog: write frame header: %w", err)
	}
	if _, err := v.w.Write(payload); err != nil {
		return dp.DataPointer{}, fmt.Errorf("vlog: write frame payload: %w", err)
	}
	v.writeOffset += uint64(dp.Size) + uint64(len(payload))
	return out, nil
}

// Deactivate marks the segment inactive: it no longer accepts writes and
// its file is removed when Close releases the handle.
func (v *Vlog) Deactivate() { v.active = false }

// Active reports whether the segment still accepts writes (i.e. has not
// been retired by GC).
func (v *Vlog) Active() bool { return v.active }

// Close drains any buffered frames to disk, then releases the segment's
// file handles. If the segment was deactivated, its file is removed —
// active vlogs are never deleted.
func (v *Vlog) Close() error {
	var closeErr error
	if err := v.Flush(); err != nil {
		closeErr = err
	}
	if err := v.w.Flush(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("vlog: flush on close: %w", err)
	}
	if err := v.wf.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("vlog: close write handle: %w", err)
	}
	if err := v.rf.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("vlog: close read handle: %w", err)
	}
	if !v.active {
		v.log.Debug("removing retired segment file", zap.String("path", v.path))
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) && closeErr == nil {
			closeErr = fmt.Errorf("vlog: remove retired segment: %w", err)
		}
	}
	return closeErr
}

// debugAssertions gates the buffer-ordering and gap-free-write checks
// spec.md calls out as "checked in debug". Kept as a package variable
// (rather than a build tag) so tests can flip it without a separate
// build.
var debugAssertions = true

func assertBufOrdered(buf []bufEntry) {
	for i := 1; i < len(buf); i++ {
		if buf[i].ptr.Offset <= buf[i-1].ptr.Offset {
			panic(fmt.Sprintf("vlog: buffer offsets not strictly increasing: %d <= %d", buf[i].ptr.Offset, buf[i-1].ptr.Offset))
		}
	}
}
