// Package gc implements the inline garbage collector worker that sweeps
// one retiring vlog segment, filtering its records against the live key
// index and surfacing live records for re-insertion by the caller.
package gc

import (
	"fmt"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
	"github.com/wisckv/wisckv/internal/vlog"
)

// Index is the subset of keyindex.KeyIndex the worker needs: a lookup by
// key returning the DataPointer currently on record for it. Defined here
// (rather than importing keyindex directly) so gc depends only on the
// lookup it actually performs.
type Index interface {
	Get(key []byte) (dp.DataPointer, bool)
}

// Worker sweeps a single retiring segment, at most one live record per
// Step call.
type Worker struct {
	segmentID uint64
	reader    *vlog.Reader
}

// NewWorker opens a sequential reader over the segment file at path.
func NewWorker(segmentID uint64, path string) (*Worker, error) {
	r, err := vlog.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("gc: open segment %d for sweep: %w", segmentID, err)
	}
	return &Worker{segmentID: segmentID, reader: r}, nil
}

// SegmentID returns the id of the segment being swept.
func (w *Worker) SegmentID() uint64 { return w.segmentID }

// Step advances the reader frame by frame, classifying each against
// index, until it returns a live record or reaches the end:
//   - the key is absent from the index (deleted)             → stale, skip
//   - the key maps elsewhere (overwritten since this frame)   → stale, skip
//   - the key maps to exactly this frame's DataPointer        → live, return it
//   - the segment is exhausted                                → ok == false
//
// The DP equality test is the validity proof: no reference counting is
// needed to know a record is still live.
func (w *Worker) Step(index Index) (entry codec.Entry, ok bool, err error) {
	for {
		ptr, e, found, err := w.reader.Next()
		if err != nil {
			return codec.Entry{}, false, err
		}
		if !found {
			return codec.Entry{}, false, nil
		}

		cur, present := index.Get(e.Key)
		if !present {
			continue
		}
		if cur != ptr {
			continue
		}
		return e, true, nil
	}
}

// Close releases the worker's segment reader.
func (w *Worker) Close() error {
	return w.reader.Close()
}
