// Package wisckv implements an embeddable, single-process key-value store
// in the WiscKey style: keys and DataPointers live in an in-memory sorted
// index with a durable snapshot, while values live in an append-only
// on-disk value log, so that large values never pay the write
// amplification of an LSM-tree compaction.
package wisckv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wisckv/wisckv/internal/codec"
	"github.com/wisckv/wisckv/internal/gc"
	"github.com/wisckv/wisckv/internal/keyindex"
	"github.com/wisckv/wisckv/internal/vlog"
)

const (
	keyIndexFileName = "key_index"
)

// Engine is one open database. It owns the vlog segment manager, the
// in-memory key index, and the inline GC's reentrancy state; all three
// are driven by Put/Delete.
type Engine struct {
	dir  string
	opts Options
	log  *zap.Logger

	vlogs *vlog.Manager
	index *keyindex.KeyIndex

	gcWorker *gc.Worker // non-nil only while a sweep is in progress
	gcActive bool       // reentrancy guard: Idle (false) / Sweeping (true)

	metrics *metrics
}

// Open opens (creating if necessary) the database directory at dir.
func Open(dir string, opts Options) (*Engine, error) {
	log := opts.logger().With(zap.String("component", "wisckv.Engine"), zap.String("dir", dir))

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	vconf := vlog.Config{
		MemBufEnabled: opts.VlogMemBufEnabled,
		MemBufSize:    opts.VlogMemBufSize,
		Sync:          opts.Sync,
		Compress:      opts.Compress,
	}
	vlogs, err := vlog.Open(dir, opts.MaxVlogSize, vconf, log)
	if err != nil {
		return nil, fmt.Errorf("wisckv: open vlog manager: %w", err)
	}

	kconf := keyindex.Config{
		SyncInterval:      opts.KeysSyncInterval,
		MaxVlogSize:       opts.MaxVlogSize,
		VlogMemBufEnabled: opts.VlogMemBufEnabled,
		VlogMemBufSize:    opts.VlogMemBufSize,
		Sync:              opts.Sync,
		Compact:           opts.Compact,
		Compress:          opts.Compress,
	}
	index, err := keyindex.Load(filepath.Join(dir, keyIndexFileName), kconf, log)
	if err != nil {
		_ = vlogs.Close()
		return nil, fmt.Errorf("wisckv: load key index: %w", err)
	}

	e := &Engine{
		dir:     dir,
		opts:    opts,
		log:     log,
		vlogs:   vlogs,
		index:   index,
		metrics: newMetrics(),
	}
	e.metrics.keyCount.Set(float64(index.Len()))
	e.metrics.segmentCount.Set(float64(vlogs.SegmentCount()))
	log.Info("opened database",
		zap.Int("keys", index.Len()),
		zap.Int("segments", vlogs.SegmentCount()),
		zap.String("vlog_size", humanize.Bytes(vlogs.TotalSize())),
	)
	return e, nil
}

// Stats is a point-in-time snapshot of the database's size, for callers
// that want a human-readable summary without scraping the prometheus
// registry.
type Stats struct {
	Keys     int
	Segments int
	VlogSize uint64
}

// String renders Stats with humanized byte counts, matching the format
// used in the engine's own startup log line.
func (s Stats) String() string {
	return fmt.Sprintf("%d keys across %d segments (%s)", s.Keys, s.Segments, humanize.Bytes(s.VlogSize))
}

// Stats reports the current key count, open segment count, and total
// on-disk vlog size.
func (e *Engine) Stats() Stats {
	return Stats{
		Keys:     e.index.Len(),
		Segments: e.vlogs.SegmentCount(),
		VlogSize: e.vlogs.TotalSize(),
	}
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return ErrNotADirectory
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return &IOError{Op: OpRead, Err: err}
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return &IOError{Op: OpCreateDir, Err: err}
	}
	return nil
}

// Put writes key → value, appending to the value log and updating the
// in-memory index. The frame stays in the vlog write buffer until that
// buffer flushes, unless Options.Sync is set or buffering is disabled, in
// which case it is written (and, with Sync, fsynced) before Put returns.
// A GC step runs afterward if Compact is
// enabled and a sweep is in progress or can be started.
func (e *Engine) Put(key, value []byte) error {
	ptr, err := e.vlogs.Put(codec.Entry{Key: key, Value: value})
	if err != nil {
		return err
	}
	if err := e.index.Put(key, ptr); err != nil {
		return err
	}
	e.metrics.puts.Inc()
	e.metrics.keyCount.Set(float64(e.index.Len()))
	e.stepGC()
	return nil
}

// Get looks up key, returning ok == false if it is absent (never written,
// or deleted).
func (e *Engine) Get(key []byte) (value []byte, ok bool, err error) {
	ptr, found := e.index.Get(key)
	if !found {
		e.metrics.gets.Inc()
		e.metrics.getMisses.Inc()
		return nil, false, nil
	}
	entry, err := e.vlogs.Get(ptr)
	if err != nil {
		return nil, false, err
	}
	e.metrics.gets.Inc()
	return entry.Value, true, nil
}

// Delete removes key from the index. A missing key is not an error. The
// value log frame it pointed to is reclaimed only when GC later sweeps
// the segment it lives in.
func (e *Engine) Delete(key []byte) error {
	e.index.Delete(key)
	e.metrics.deletes.Inc()
	e.metrics.keyCount.Set(float64(e.index.Len()))
	e.stepGC()
	return nil
}

// stepGC advances the inline garbage collector by at most one live
// record, skipping any stale frames in front of it. It is a no-op when
// Compact is disabled. Failures are logged at Warn level and not returned
// to the caller of Put or Delete. The reentrancy guard (gcActive)
// ensures a sweep in progress is resumed rather than restarted by the
// next mutation; once a segment drains, it is reclaimed and the worker
// goes back to Idle.
func (e *Engine) stepGC() {
	if !e.opts.Compact {
		return
	}

	if !e.gcActive {
		id, path, ok := e.vlogs.GCCandidate()
		if !ok {
			return
		}
		w, err := gc.NewWorker(id, path)
		if err != nil {
			e.log.Warn("gc: failed to open sweep candidate", zap.Uint64("segment", id), zap.Error(err))
			return
		}
		e.gcWorker = w
		e.gcActive = true
		e.log.Debug("gc: starting sweep", zap.Uint64("segment", id))
	}

	entry, ok, err := e.gcWorker.Step(e.index)
	if err != nil {
		e.log.Warn("gc: sweep step failed, abandoning segment", zap.Uint64("segment", e.gcWorker.SegmentID()), zap.Error(err))
		_ = e.gcWorker.Close()
		e.gcWorker = nil
		e.gcActive = false
		return
	}
	e.metrics.gcSteps.Inc()

	if ok {
		// Live record: re-append to the tail and repoint the index at
		// its new home before the old segment is dropped.
		newPtr, err := e.vlogs.Put(entry)
		if err != nil {
			e.log.Warn("gc: failed to re-append live record, abandoning segment", zap.Uint64("segment", e.gcWorker.SegmentID()), zap.Error(err))
			_ = e.gcWorker.Close()
			e.gcWorker = nil
			e.gcActive = false
			return
		}
		if err := e.index.Put(entry.Key, newPtr); err != nil {
			e.log.Warn("gc: failed to repoint index after re-append", zap.Error(err))
		}
		return
	}

	// Segment drained: reclaim it and return to Idle.
	segID := e.gcWorker.SegmentID()
	if err := e.gcWorker.Close(); err != nil {
		e.log.Warn("gc: failed to close drained segment reader", zap.Error(err))
	}
	if err := e.vlogs.DropVlog(segID); err != nil {
		e.log.Warn("gc: failed to drop reclaimed segment", zap.Uint64("segment", segID), zap.Error(err))
	} else {
		e.metrics.gcReclaimed.Inc()
		e.metrics.segmentCount.Set(float64(e.vlogs.SegmentCount()))
		e.log.Info("gc: reclaimed segment", zap.Uint64("segment", segID))
	}
	e.gcWorker = nil
	e.gcActive = false
}

// Sync durably persists the key index snapshot and the vlog segment
// roster (and flushes any buffered vlog writes). Put already syncs the
// index opportunistically per Options.KeysSyncInterval; Sync forces both
// regardless of that timer.
func (e *Engine) Sync() error {
	e.metrics.syncs.Inc()
	var result *multierror.Error
	if err := e.index.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("sync key index: %w", err))
	}
	if err := e.vlogs.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("sync vlog manager: %w", err))
	}
	return result.ErrorOrNil()
}

// Close syncs and releases every resource the Engine holds. Close is not
// safe to call more than once.
func (e *Engine) Close() error {
	var result *multierror.Error
	if err := e.index.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close key index: %w", err))
	}
	if e.gcWorker != nil {
		if err := e.gcWorker.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close gc worker: %w", err))
		}
	}
	if err := e.vlogs.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close vlog manager: %w", err))
	}
	return result.ErrorOrNil()
}

// Metrics returns the engine's private prometheus registry. The caller
// decides whether and how to expose it; wisckv never serves it itself.
func (e *Engine) Metrics() *prometheus.Registry {
	return e.metrics.registry
}
