// Package keyindex implements the in-memory ordered map from key to
// DataPointer, with a durable whole-file snapshot.
package keyindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/wisckv/wisckv/internal/dp"
)

// ErrTimeWentBackwards is returned when the wall clock appears to have
// moved backwards between two successive reads, while checking whether
// an opportunistic sync is due.
var ErrTimeWentBackwards = fmt.Errorf("keyindex: system clock went backwards")

// btreeDegree is the branching factor passed to btree.New. 32 is the
// value google/btree's own benchmarks settle on for byte-slice-ish keys;
// there is nothing workload-specific driving a different choice here.
const btreeDegree = 32

// Config carries the subset of the database's options the KeyIndex needs
// for its own behavior (SyncInterval) and the subset it persists
// alongside the snapshot purely for informational parity with the wire
// format described in spec.md §6 (the rest). It intentionally does not
// import the root engine's Options type, to keep this package free of a
// dependency on its own caller.
type Config struct {
	SyncInterval      time.Duration
	MaxVlogSize       uint64
	VlogMemBufEnabled bool
	VlogMemBufSize    int
	Sync              bool
	Compact           bool
	Compress          bool
}

// item is the btree.Item stored in the tree: a key and the DataPointer
// it maps to, ordered lexicographically by key.
type item struct {
	key string
	ptr dp.DataPointer
}

func (i item) Less(than btree.Item) bool {
	return i.key < than.(item).key
}

// snapshot is the on-disk shape of the KeyIndex file: the sorted map
// (flattened to a slice for gob), the path it was written to, the
// wall-clock marker of the write, and a copy of the configuration active
// at that time.
type snapshot struct {
	Entries []snapshotEntry
	Path    string
	Marker  int64 // UnixNano
	Conf    Config
}

type snapshotEntry struct {
	Key string
	Ptr dp.DataPointer
}

// KeyIndex is the in-memory sorted map from key to DataPointer, backed by
// a google/btree for O(log n) point operations and a free ordered
// ascending iterator.
type KeyIndex struct {
	tree         *btree.BTree
	path         string
	conf         Config
	lastSyncedAt time.Time
	log          *zap.Logger
}

// Load opens the KeyIndex snapshot at path if it exists, or constructs an
// empty index otherwise.
func Load(path string, conf Config, log *zap.Logger) (*KeyIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ki := &KeyIndex{
		tree:         btree.New(btreeDegree),
		path:         path,
		conf:         conf,
		lastSyncedAt: time.Now(),
		log:          log.With(zap.String("component", "keyindex")),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ki, nil
		}
		return nil, fmt.Errorf("keyindex: read snapshot: %w", err)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("keyindex: decode snapshot: %w", err)
	}
	for _, e := range snap.Entries {
		ki.tree.ReplaceOrInsert(item{key: e.Key, ptr: e.Ptr})
	}
	ki.log.Info("loaded key index snapshot", zap.Int("keys", ki.tree.Len()))
	return ki, nil
}

// Put inserts key → ptr, opportunistically syncing to disk if more than
// Config.SyncInterval has elapsed since the last sync.
func (ki *KeyIndex) Put(key []byte, ptr dp.DataPointer) error {
	ki.tree.ReplaceOrInsert(item{key: string(key), ptr: ptr})
	if ki.conf.SyncInterval <= 0 {
		return nil
	}
	elapsed := time.Since(ki.lastSyncedAt)
	if elapsed < 0 {
		return ErrTimeWentBackwards
	}
	if elapsed > ki.conf.SyncInterval {
		return ki.Sync()
	}
	return nil
}

// Get looks up key, returning ok == false if absent (i.e. deleted or
// never written).
func (ki *KeyIndex) Get(key []byte) (dp.DataPointer, bool) {
	found := ki.tree.Get(item{key: string(key)})
	if found == nil {
		return dp.DataPointer{}, false
	}
	return found.(item).ptr, true
}

// Delete removes key from the index. A missing key is not an error.
func (ki *KeyIndex) Delete(key []byte) {
	ki.tree.Delete(item{key: string(key)})
}

// Len reports the number of live keys.
func (ki *KeyIndex) Len() int { return ki.tree.Len() }

// Ascend calls fn for every (key, DataPointer) pair in ascending key
// order, stopping early if fn returns false. The index must not be
// mutated while an Ascend traversal is in progress.
func (ki *KeyIndex) Ascend(fn func(key []byte, ptr dp.DataPointer) bool) {
	ki.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		return fn([]byte(it.key), it.ptr)
	})
}

// Sync encodes the whole index and overwrites the snapshot file. It is
// not incremental: every call rewrites the entire file.
func (ki *KeyIndex) Sync() error {
	snap := snapshot{
		Path:   ki.path,
		Marker: time.Now().UnixNano(),
		Conf:   ki.conf,
	}
	snap.Entries = make([]snapshotEntry, 0, ki.tree.Len())
	ki.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		snap.Entries = append(snap.Entries, snapshotEntry{Key: it.key, Ptr: it.ptr})
		return true
	})

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("keyindex: encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(ki.path), 0o777); err != nil {
		return fmt.Errorf("keyindex: ensure snapshot dir: %w", err)
	}
	tmp := ki.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o666); err != nil {
		return fmt.Errorf("keyindex: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, ki.path); err != nil {
		return fmt.Errorf("keyindex: rename snapshot: %w", err)
	}
	ki.lastSyncedAt = time.Now()
	ki.log.Debug("synced key index snapshot", zap.Int("keys", len(snap.Entries)))
	return nil
}

// Close performs a final sync and returns its error, if any.
func (ki *KeyIndex) Close() error {
	return ki.Sync()
}
