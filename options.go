package wisckv

import (
	"time"

	"go.uber.org/zap"
)

// Options configures an Engine. Zero value is not meaningful; start from
// DefaultOptions and layer With* mutators on top.
//
//	db, err := wisckv.Open(dir, wisckv.DefaultOptions().
//		WithMaxVlogSize(256<<20).
//		WithCompress(false))
type Options struct {
	// MaxVlogSize is the size, in bytes, a vlog segment is allowed to
	// reach before the next Put rolls over to a new segment.
	MaxVlogSize uint64

	// VlogMemBufEnabled buffers written frames in memory and defers
	// their disk write until the buffer would overflow VlogMemBufSize
	// or the segment is closed/synced. Disabling it makes every Put an
	// immediate write+flush.
	VlogMemBufEnabled bool

	// VlogMemBufSize bounds the in-memory write buffer, in bytes of
	// on-disk serialized frame size, when VlogMemBufEnabled is true.
	VlogMemBufSize int

	// Sync fsyncs every vlog write before it is acknowledged. Slower,
	// but survives a process crash without losing acknowledged writes
	// to the buffer (durability of the key index itself is a separate
	// concern, governed by KeysSyncInterval).
	Sync bool

	// Compact enables the inline garbage collector: one GC step runs
	// after every mutation, when a retiring segment is available.
	Compact bool

	// Compress snappy-compresses each encoded entry (key and value)
	// before it is written to a vlog segment.
	Compress bool

	// KeysSyncInterval is the minimum time between opportunistic
	// key-index snapshot syncs triggered by a Put. A value of
	// 0 disables opportunistic syncing; callers must then call Sync
	// explicitly.
	KeysSyncInterval time.Duration

	// Logger receives structured logs for every component. A nop logger
	// is used if nil.
	Logger *zap.Logger
}

// DefaultOptions returns the engine's default configuration.
func DefaultOptions() Options {
	return Options{
		MaxVlogSize:       1_000_000_000,
		VlogMemBufEnabled: true,
		VlogMemBufSize:    8_000_000,
		Sync:              false,
		Compact:           true,
		Compress:          true,
		KeysSyncInterval:  10 * time.Second,
	}
}

// WithMaxVlogSize sets MaxVlogSize.
func (o Options) WithMaxVlogSize(n uint64) Options { o.MaxVlogSize = n; return o }

// WithVlogMemBuf sets VlogMemBufEnabled and VlogMemBufSize together, since
// the size is meaningless without the buffer being enabled.
func (o Options) WithVlogMemBuf(enabled bool, size int) Options {
	o.VlogMemBufEnabled = enabled
	o.VlogMemBufSize = size
	return o
}

// WithSync sets Sync.
func (o Options) WithSync(sync bool) Options { o.Sync = sync; return o }

// WithCompact sets Compact.
func (o Options) WithCompact(compact bool) Options { o.Compact = compact; return o }

// WithCompress sets Compress.
func (o Options) WithCompress(compress bool) Options { o.Compress = compress; return o }

// WithKeysSyncInterval sets KeysSyncInterval.
func (o Options) WithKeysSyncInterval(d time.Duration) Options { o.KeysSyncInterval = d; return o }

// WithLogger sets Logger.
func (o Options) WithLogger(log *zap.Logger) Options { o.Logger = log; return o }

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
