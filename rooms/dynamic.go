package rooms

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/corelocks/synctools/qsync"
	"github.com/corelocks/synctools/qsync/qerrors"
)

// Strategy selects one of the three substrate behaviors for handling a
// room set whose index mask can widen concurrently with an in-flight
// acquisition.
type Strategy int

const (
	// StrategyA re-reads the mask after a successful CAS; if it changed
	// mid-acquisition, the just-taken room is released and the whole
	// attempt retried under the new mask. This is the conservative
	// default.
	StrategyA Strategy = iota
	// StrategyB re-reads the mask on every loop iteration of both acquire
	// and release, with no post-success re-check.
	StrategyB
	// StrategyC makes a single CAS attempt per predicate call under
	// whatever mask is current and reports "must wait" (not overflow) on
	// any contention, including a lost CAS race: TryLock then fails, while
	// Lock and LockContext park in the substrate and try again after the
	// next release.
	StrategyC
)

// WithStrategy selects the acquire strategy for a Dynamic. The default,
// used if this option is omitted, is StrategyA.
func WithStrategy(s Strategy) Option {
	return func(c *config) { c.strategy = s }
}

// Dynamic is a RoomSynchronizer whose room set is discovered lazily: the
// first lock request for a given key mints a new room index, one past the
// current room count, widening the index mask once the count crosses a
// power-of-two boundary.
type Dynamic struct {
	state    uint32 // atomic
	ngenders int64  // atomic; count of rooms minted so far
	keys     sync.Map // key any -> encoded index (uint32)

	strategy Strategy
	log      *zap.Logger
	qs       *qsync.Sync
}

// NewDynamic returns an empty Dynamic; rooms are minted on first use.
func NewDynamic(opts ...Option) *Dynamic {
	c := newConfig(opts)
	d := &Dynamic{strategy: c.strategy, log: c.log}
	d.qs = qsync.New(d, qsync.WithLogger(d.log))
	return d
}

// For returns the reentrant shared lock handle for key, minting a new
// room index the first time key is seen.
func (d *Dynamic) For(key any) qsync.Locker {
	return qsync.NewSharedHandle(d.qs, d.indexFor(key))
}

func (d *Dynamic) indexFor(key any) uint32 {
	if v, ok := d.keys.Load(key); ok {
		return v.(uint32)
	}
	n := atomic.AddInt64(&d.ngenders, 1)
	enc := encodeIndex(int(n))
	actual, _ := d.keys.LoadOrStore(key, enc)
	// If another goroutine won the race to register this key first, n is
	// simply an index that no key will ever use; ngenders only needs to be
	// a monotonic upper bound for mask sizing, not a dense numbering.
	return actual.(uint32)
}

func (d *Dynamic) currentMask() uint32 {
	return maskFor(int(atomic.LoadInt64(&d.ngenders)))
}

func (d *Dynamic) TryAcquireShared(encIdx uint32) (int32, error) {
	switch d.strategy {
	case StrategyB:
		return d.acquireB(encIdx)
	case StrategyC:
		return d.acquireC(encIdx)
	default:
		return d.acquireA(encIdx)
	}
}

// acquireA: read mask, attempt CAS, then re-read mask; a change mid-flight
// means a concurrent room registration may have invalidated the layout, so
// the just-taken room is released and the whole attempt retried.
func (d *Dynamic) acquireA(encIdx uint32) (int32, error) {
	for {
		mask := d.currentMask()
		s := atomic.LoadUint32(&d.state)

		var next uint32
		switch {
		case s == 0:
			next = encIdx | 1
		case s&mask == encIdx:
			if s&^mask == ^mask {
				d.log.Error("rooms: dynamic room occupancy count overflow", zap.Uint32("room", encIdx))
				return -1, qerrors.ErrOverflow
			}
			next = s + 1
		default:
			return -1, nil
		}

		if !atomic.CompareAndSwapUint32(&d.state, s, next) {
			continue
		}
		if newMask := d.currentMask(); newMask != mask {
			d.log.Error("rooms: dynamic mask widened mid-acquisition, discarding and retrying",
				zap.Uint32("old_mask", mask), zap.Uint32("new_mask", newMask))
			if _, err := tryReleaseRoom(&d.state, newMask, encIdx); err != nil {
				return -1, err
			}
			continue
		}
		return 1, nil
	}
}

// acquireB: reload the mask on every iteration; no post-success re-check.
func (d *Dynamic) acquireB(encIdx uint32) (int32, error) {
	for {
		mask := d.currentMask()
		s := atomic.LoadUint32(&d.state)

		var next uint32
		switch {
		case s == 0:
			next = encIdx | 1
		case s&mask == encIdx:
			if s&^mask == ^mask {
				d.log.Error("rooms: dynamic room occupancy count overflow", zap.Uint32("room", encIdx))
				return -1, qerrors.ErrOverflow
			}
			next = s + 1
		default:
			return -1, nil
		}

		if atomic.CompareAndSwapUint32(&d.state, s, next) {
			return 1, nil
		}
	}
}

// acquireC: a single CAS attempt under the current mask, with no CAS retry
// loop; any contention is reported the same as "must wait".
func (d *Dynamic) acquireC(encIdx uint32) (int32, error) {
	mask := d.currentMask()
	s := atomic.LoadUint32(&d.state)

	var next uint32
	switch {
	case s == 0:
		next = encIdx | 1
	case s&mask == encIdx:
		if s&^mask == ^mask {
			d.log.Error("rooms: dynamic room occupancy count overflow", zap.Uint32("room", encIdx))
			return -1, qerrors.ErrOverflow
		}
		next = s + 1
	default:
		return -1, nil
	}

	if !atomic.CompareAndSwapUint32(&d.state, s, next) {
		return -1, nil
	}
	return 1, nil
}

// TryReleaseShared reloads the mask on every iteration regardless of
// strategy: a release must never fail due to a widened mask, only due to
// holding the wrong room.
func (d *Dynamic) TryReleaseShared(encIdx uint32) (bool, error) {
	for {
		mask := d.currentMask()
		s := atomic.LoadUint32(&d.state)
		if s&mask != encIdx {
			return false, qerrors.ErrIllegalMonitorState
		}
		next := s - 1
		if next&^mask == 0 {
			next = 0
		}
		if atomic.CompareAndSwapUint32(&d.state, s, next) {
			return next == 0, nil
		}
	}
}

func (d *Dynamic) TryAcquireExclusive(uint32) (int32, error) {
	return -1, qerrors.ErrConditionUnsupported
}

func (d *Dynamic) TryReleaseExclusive(uint32) (bool, error) {
	return false, qerrors.ErrConditionUnsupported
}
