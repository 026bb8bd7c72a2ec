package vlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/dp"
)

// rosterFileName is the on-disk name of the segment roster, persisted
// directly under the database directory.
const rosterFileName = "vlog_info"

// gcCandidateFloor is the "segments > 3" heuristic from spec.md §4.4: the
// three newest segments are never offered for GC, since they may still
// accumulate writes or hold recently-inserted live data. Honored
// verbatim, not configurable.
const gcCandidateFloor = 3

// segmentFileName builds the on-disk name for segment id.
func segmentFileName(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.vlog", id))
}

// ErrMissingSegment is returned when a DataPointer references a segment
// absent from the manager's roster.
type ErrMissingSegment struct {
	SegmentID uint64
}

func (e *ErrMissingSegment) Error() string {
	return fmt.Sprintf("vlog: missing segment %d", e.SegmentID)
}

// Manager owns the set of vlog segments for one database: it routes puts
// to the tail, opens reads on the correct segment, picks GC candidates,
// and persists the segment roster.
type Manager struct {
	dir  string
	conf Config

	maxSegmentSize uint64
	segments       map[uint64]*Vlog
	tailID         uint64

	log *zap.Logger
}

// Open loads the roster (if any) from dir, opens every segment it names,
// and establishes the tail as the highest-numbered segment present. If no
// roster exists, the manager starts empty; the first Put creates segment
// 1.
func Open(dir string, maxSegmentSize uint64, conf Config, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		dir:            dir,
		conf:           conf,
		maxSegmentSize: maxSegmentSize,
		segments:       make(map[uint64]*Vlog),
		log:            log.With(zap.String("component", "vlog.Manager")),
	}

	ids, err := readRoster(dir)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		v, err := OpenSegment(segmentFileName(dir, id), id, conf, log)
		if err != nil {
			return nil, err
		}
		m.segments[id] = v
		if id > m.tailID {
			m.tailID = id
		}
	}

	m.log.Info("vlog manager opened", zap.Int("segments", len(m.segments)), zap.Uint64("tail", m.tailID))
	return m, nil
}

func readRoster(dir string) ([]uint64, error) {
	path := filepath.Join(dir, rosterFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vlog: read roster: %w", err)
	}
	ids, err := codec.DecodeUint64Slice(data)
	if err != nil {
		return nil, fmt.Errorf("vlog: decode roster: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// tail returns the current tail segment, creating segment 1 if the
// manager has no segments yet.
func (m *Manager) tail() (*Vlog, error) {
	if m.tailID == 0 {
		return m.newTail(1)
	}
	v, ok := m.segments[m.tailID]
	if !ok {
		return nil, fmt.Errorf("vlog: tail segment %d missing from map", m.tailID)
	}
	return v, nil
}

func (m *Manager) newTail(id uint64) (*Vlog, error) {
	v, err := OpenSegment(segmentFileName(m.dir, id), id, m.conf, m.log)
	if err != nil {
		return nil, err
	}
	m.segments[id] = v
	m.tailID = id
	m.log.Debug("opened new tail segment", zap.Uint64("segment", id))
	return v, nil
}

// Put routes e to the tail segment, rolling over to a fresh tail first if
// the current tail has grown past maxSegmentSize.
func (m *Manager) Put(e codec.Entry) (dp.DataPointer, error) {
	tail, err := m.tail()
	if err != nil {
		return dp.DataPointer{}, err
	}

	if tail.Size() > m.maxSegmentSize {
		if err := tail.Flush(); err != nil {
			return dp.DataPointer{}, err
		}
		tail, err = m.newTail(m.tailID + 1)
		if err != nil {
			return dp.DataPointer{}, err
		}
	}

	return tail.Put(e)
}

// Get resolves ptr through the segment it names.
func (m *Manager) Get(ptr dp.DataPointer) (codec.Entry, error) {
	v, ok := m.segments[ptr.SegmentID]
	if !ok {
		return codec.Entry{}, &ErrMissingSegment{SegmentID: ptr.SegmentID}
	}
	return v.Get(ptr)
}

// SegmentPath returns the on-disk path for a live segment id, for GC to
// open an independent sequential reader against.
func (m *Manager) SegmentPath(id uint64) (string, bool) {
	v, ok := m.segments[id]
	if !ok {
		return "", false
	}
	return v.Path(), true
}

// DropVlog removes the segment from the manager and deactivates it; its
// file is removed once its handle is released via Close.
func (m *Manager) DropVlog(id uint64) error {
	v, ok := m.segments[id]
	if !ok {
		return &ErrMissingSegment{SegmentID: id}
	}
	delete(m.segments, id)
	v.Deactivate()
	m.log.Info("dropping retired segment", zap.Uint64("segment", id))
	return v.Close()
}

// GCCandidate returns the smallest-id segment eligible for GC — one that
// is not among the three newest segments — or ok == false if none
// qualifies yet.
func (m *Manager) GCCandidate() (id uint64, path string, ok bool) {
	if len(m.segments) <= gcCandidateFloor {
		return 0, "", false
	}
	ids := m.sortedIDs()
	smallest := ids[0]
	p, _ := m.SegmentPath(smallest)
	return smallest, p, true
}

func (m *Manager) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(m.segments))
	for id := range m.segments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sync flushes every segment's write buffer and rewrites the roster.
func (m *Manager) Sync() error {
	for _, id := range m.sortedIDs() {
		if err := m.segments[id].Flush(); err != nil {
			return err
		}
	}
	return m.writeRoster()
}

func (m *Manager) writeRoster() error {
	ids := m.sortedIDs()
	data := codec.EncodeUint64Slice(ids)
	path := filepath.Join(m.dir, rosterFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o666); err != nil {
		return fmt.Errorf("vlog: write roster: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vlog: rename roster: %w", err)
	}
	return nil
}

// Close syncs and closes every remaining segment handle. A failed Sync
// does not skip the close loop: every segment still gets a chance to
// flush its own buffer and release its handles, and any failures are
// aggregated together with the Sync error instead of masking them.
func (m *Manager) Close() error {
	var result *multierror.Error
	if err := m.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("vlog: sync before close: %w", err))
	}
	for _, id := range m.sortedIDs() {
		if err := m.segments[id].Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("vlog: close segment %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// SegmentCount reports the number of live segments, used by tests and
// metrics.
func (m *Manager) SegmentCount() int { return len(m.segments) }

// TotalSize reports the combined logical size of every live segment, for
// Engine.Stats.
func (m *Manager) TotalSize() uint64 {
	var total uint64
	for _, v := range m.segments {
		total += v.Size()
	}
	return total
}
