package rooms

import (
	"go.uber.org/zap"

	"github.com/corelocks/synctools/qsync"
	"github.com/corelocks/synctools/qsync/qerrors"
)

// Option configures a Rooms, GenderLock, or Dynamic at construction.
type Option func(*config)

type config struct {
	log      *zap.Logger
	strategy Strategy // only consulted by Dynamic; StrategyA is the zero value
}

// WithLogger attaches a zap logger for Debug-level tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rooms is a static RoomSynchronizer: a fixed ordered set of room keys, each
// offering a reentrant shared lock, with mutual exclusion across rooms --
// at most one room may be occupied at any instant.
type Rooms struct {
	state uint32 // atomic; see predicate.go/state.go for the encoding
	mask  uint32
	index map[any]uint32
	log   *zap.Logger
	qs    *qsync.Sync
}

// New returns a Rooms whose room set is exactly keys, assigned indices 1..N
// in iteration order.
func New(keys []any, opts ...Option) *Rooms {
	c := newConfig(opts)
	index := make(map[any]uint32, len(keys))
	for i, k := range keys {
		index[k] = encodeIndex(i + 1)
	}
	r := &Rooms{mask: maskFor(len(keys)), index: index, log: c.log}
	r.qs = qsync.New(r, qsync.WithLogger(r.log))
	return r
}

// For returns the reentrant shared lock handle for key. It returns
// ErrUnknownRoom if key was not part of the set given to New.
func (r *Rooms) For(key any) (qsync.Locker, error) {
	enc, ok := r.index[key]
	if !ok {
		return nil, qerrors.ErrUnknownRoom
	}
	return qsync.NewSharedHandle(r.qs, enc), nil
}

func (r *Rooms) TryAcquireShared(encIdx uint32) (int32, error) {
	return tryAcquireRoom(r.log, &r.state, r.mask, encIdx)
}

func (r *Rooms) TryReleaseShared(encIdx uint32) (bool, error) {
	return tryReleaseRoom(&r.state, r.mask, encIdx)
}

// TryAcquireExclusive/TryReleaseExclusive exist only to satisfy
// qsync.Predicate: Rooms never hands out an exclusive handle.
func (r *Rooms) TryAcquireExclusive(uint32) (int32, error) {
	return -1, qerrors.ErrConditionUnsupported
}

func (r *Rooms) TryReleaseExclusive(uint32) (bool, error) {
	return false, qerrors.ErrConditionUnsupported
}
