package ownedlock

import (
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/corelocks/synctools/qsync/qerrors"
)

// TryAcquireExclusive implements qsync.Predicate: free state is claimed by
// the requesting owner's token outright; a state already held by that same
// token is entered reentrantly; any other live token must wait.
func (l *Lock) TryAcquireExclusive(tok uint32) (int32, error) {
	for {
		s := atomic.LoadUint32(&l.state)
		if s == 0 {
			if !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
				continue
			}
			atomic.StoreInt64(&l.holder, int64(tok))
			return 0, nil
		}
		if atomic.LoadInt64(&l.holder) != int64(tok) {
			return -1, nil
		}
		if s == maxDepth {
			l.log.Error("ownedlock: reentrancy depth overflow")
			return -1, qerrors.ErrOverflow
		}
		if !atomic.CompareAndSwapUint32(&l.state, s, s+1) {
			continue
		}
		return 0, nil
	}
}

// TryReleaseExclusive decrements one level of reentrant hold. When the
// depth reaches zero the holder token is reset to 0 (no real token is ever
// 0, since tokens are minted starting at 1) before the state word itself
// is observed free, closing the same stale-holder race mmlock's write mode
// guards against.
//
// A bogus release can fail both of this function's checks at once (no one
// holds the lock at all, and naturally the caller's token isn't the
// holder); both are detected and aggregated via multierr rather than only
// the first being reported, mirroring mmlock's shared-release path.
func (l *Lock) TryReleaseExclusive(tok uint32) (bool, error) {
	for {
		s := atomic.LoadUint32(&l.state)
		var errs error
		if s == 0 {
			errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
		}
		if atomic.LoadInt64(&l.holder) != int64(tok) {
			errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
		}
		if errs != nil {
			return false, errs
		}
		if s == 1 {
			atomic.StoreInt64(&l.holder, 0)
			if !atomic.CompareAndSwapUint32(&l.state, 1, 0) {
				continue
			}
			return true, nil
		}
		if !atomic.CompareAndSwapUint32(&l.state, s, s-1) {
			continue
		}
		return false, nil
	}
}

// TryAcquireShared/TryReleaseShared exist only to satisfy qsync.Predicate:
// OwnedLock has no shared mode.
func (l *Lock) TryAcquireShared(uint32) (int32, error) {
	return -1, qerrors.ErrConditionUnsupported
}

func (l *Lock) TryReleaseShared(uint32) (bool, error) {
	return false, qerrors.ErrConditionUnsupported
}
