package rooms

import (
	"sync"

	"go.uber.org/zap"

	"github.com/corelocks/synctools/qsync"
	"github.com/corelocks/synctools/qsync/qerrors"
)

// GenderLock is a RoomSynchronizer augmented with a per-room exit handler:
// a parameterless action run precisely when a room's lock count drops to
// zero. The handler runs on the goroutine performing the final release,
// after the CAS that clears the state, and any panic it raises propagates
// to that goroutine's Unlock call unmodified.
type GenderLock struct {
	state uint32
	mask  uint32
	index map[any]uint32
	byIdx map[uint32]any

	handlers sync.Map // key any -> func()

	log *zap.Logger
	qs  *qsync.Sync
}

// NewGenderLock returns a GenderLock whose room set is exactly keys.
func NewGenderLock(keys []any, opts ...Option) *GenderLock {
	c := newConfig(opts)
	index := make(map[any]uint32, len(keys))
	byIdx := make(map[uint32]any, len(keys))
	for i, k := range keys {
		enc := encodeIndex(i + 1)
		index[k] = enc
		byIdx[enc] = k
	}
	g := &GenderLock{mask: maskFor(len(keys)), index: index, byIdx: byIdx, log: c.log}
	g.qs = qsync.New(g, qsync.WithLogger(g.log))
	return g
}

// For returns the reentrant shared lock handle for key.
func (g *GenderLock) For(key any) (qsync.Locker, error) {
	enc, ok := g.index[key]
	if !ok {
		return nil, qerrors.ErrUnknownRoom
	}
	return qsync.NewSharedHandle(g.qs, enc), nil
}

// SetExitHandler registers fn to run each time key's room empties.
// Re-registering replaces any previously registered handler.
func (g *GenderLock) SetExitHandler(key any, fn func()) error {
	if _, ok := g.index[key]; !ok {
		return qerrors.ErrUnknownRoom
	}
	g.handlers.Store(key, fn)
	return nil
}

func (g *GenderLock) TryAcquireShared(encIdx uint32) (int32, error) {
	return tryAcquireRoom(g.log, &g.state, g.mask, encIdx)
}

func (g *GenderLock) TryReleaseShared(encIdx uint32) (bool, error) {
	free, err := tryReleaseRoom(&g.state, g.mask, encIdx)
	if err != nil {
		return false, err
	}
	if free {
		if fn, ok := g.handlers.Load(g.byIdx[encIdx]); ok {
			g.runExitHandler(fn.(func()))
		}
	}
	return free, nil
}

// runExitHandler runs fn, recovering and logging any panic before
// re-raising it: the panic still propagates to the releasing goroutine's
// Unlock call unmodified, but not silently.
func (g *GenderLock) runExitHandler(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("rooms: exit handler panicked", zap.Any("panic", r))
			panic(r)
		}
	}()
	fn()
}

func (g *GenderLock) TryAcquireExclusive(uint32) (int32, error) {
	return -1, qerrors.ErrConditionUnsupported
}

func (g *GenderLock) TryReleaseExclusive(uint32) (bool, error) {
	return false, qerrors.ErrConditionUnsupported
}
