package wisckv

import (
	"errors"
	"fmt"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/keyindex"
	"github.com/wisckv/wisckv/internal/vlog"
)

// Sentinel errors returned by Engine operations. Internal packages define
// and wrap their own errors closer to the fault; these aliases let callers
// write errors.Is(err, wisckv.ErrXxx) without reaching into internal/*.
var (
	// ErrNotADirectory is returned by Open when the given path exists
	// and is not a directory.
	ErrNotADirectory = errors.New("wisckv: path exists and is not a directory")

	// ErrEncode is returned when an entry cannot be framed for the vlog.
	ErrEncode = codec.ErrEncodeFailed
	// ErrDecode is returned when a vlog frame cannot be parsed back into
	// an entry.
	ErrDecode = codec.ErrDecodeFailed
	// ErrDecompress is returned when a compressed value fails to
	// decompress.
	ErrDecompress = codec.ErrDecompressFailed

	// ErrVlogCorrupt is returned when a vlog segment's frame stream
	// ends mid-frame instead of on a frame boundary.
	ErrVlogCorrupt = vlog.ErrVlogCorrupt

	// ErrTimeWentBackwards is returned when the wall clock appears to
	// move backwards between two key-index syncs.
	ErrTimeWentBackwards = keyindex.ErrTimeWentBackwards
)

// ErrMissingSegment reports that a DataPointer names a vlog segment the
// manager does not have open, which can only happen from a corrupt
// roster or a caller holding a stale DataPointer across a GC collection.
type ErrMissingSegment = vlog.ErrMissingSegment

// IOOp names the filesystem operation an IOError wraps, matching the
// taxonomy used to describe failure modes in the on-disk layout.
type IOOp string

const (
	OpRead      IOOp = "read"
	OpWrite     IOOp = "write"
	OpSeek      IOOp = "seek"
	OpRemove    IOOp = "remove"
	OpCreateDir IOOp = "create_dir"
)

// IOError wraps a filesystem failure with the operation that triggered
// it, for callers that want to distinguish e.g. a failed mkdir from a
// failed segment read without parsing error strings.
type IOError struct {
	Op  IOOp
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wisckv: io %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
