package wisckv

import "github.com/wisckv/wisckv/internal/dp"

// Iterator walks the database in ascending key order. Values are
// resolved lazily, one vlog read per Value call; building an Iterator
// copies every key and DataPointer from the index but reads no values.
type Iterator struct {
	keys   [][]byte
	ptrs   []dp.DataPointer
	cursor int

	eng *Engine
}

// Iterate returns an Iterator positioned before the first key. Callers
// must call Next before the first Key/Value. The error return exists for
// API symmetry with the rest of Engine's methods; building an Iterator
// over the in-memory index cannot itself fail.
//
// The snapshot of keys is taken eagerly from the in-memory index at call
// time; it does not observe writes made after Iterate returns.
func (e *Engine) Iterate() (*Iterator, error) {
	it := &Iterator{eng: e, cursor: -1}
	e.index.Ascend(func(key []byte, ptr dp.DataPointer) bool {
		k := append([]byte(nil), key...)
		it.keys = append(it.keys, k)
		it.ptrs = append(it.ptrs, ptr)
		return true
	})
	return it, nil
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator) Next() bool {
	it.cursor++
	return it.cursor < len(it.keys)
}

// Key returns the current key. Valid only after a Next call that
// returned true.
func (it *Iterator) Key() []byte {
	return it.keys[it.cursor]
}

// Value resolves and returns the current value by reading its vlog
// frame. Valid only after a Next call that returned true.
func (it *Iterator) Value() ([]byte, error) {
	entry, err := it.eng.vlogs.Get(it.ptrs[it.cursor])
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}
