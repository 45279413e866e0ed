package mmlock

import (
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/corelocks/synctools/qsync/qerrors"
)

// Lock implements qsync.Predicate. The shared path is driven by ReadLock,
// IntentReadLock, and IntentWriteLock (req values reqRead/reqIntentRead/
// reqIntentWrite); the exclusive path is driven solely by WriteLock.

// TryAcquireShared attempts to add one unit of the requested kind. It
// implements the compatibility matrix:
//
//	reqRead:        compatible with tagFree, tagShared (bumps lower=readers)
//	reqIntentRead:  compatible with tagFree, tagShared, tagIntent (bumps upper in either)
//	reqIntentWrite: compatible with tagFree, tagIntent (bumps lower=intent-writers)
//
// A plain reader and an intent-writer can never coexist (they occupy
// different tags, tagShared vs tagIntent), which is the matrix's one
// asymmetry: intent-read is the only kind that can land in either tag,
// which is why it is tracked as the upper field of both.
//
// The signal returned on success is always positive: a successful shared
// grant may leave room for other queued shared contenders of a compatible
// kind to also succeed, so the substrate is told to wake everyone and let
// each re-run its own predicate.
func (l *Lock) TryAcquireShared(req uint32) (int32, error) {
	for {
		s := atomic.LoadUint32(&l.state)
		tag := tagOf(s)

		var next uint32
		switch req {
		case reqRead:
			switch tag {
			case tagFree:
				next = makeShared(tagShared, 0, 1)
			case tagShared:
				lower := lowerOf(s)
				if lower == maxField {
					l.log.Error("mmlock: reader count field overflow")
					return -1, qerrors.ErrOverflow
				}
				next = makeShared(tagShared, upperOf(s), lower+1)
			default:
				return -1, nil // tagIntent or tagExcl: incompatible, go wait
			}

		case reqIntentRead:
			switch tag {
			case tagFree:
				next = makeShared(tagShared, 1, 0)
			case tagShared, tagIntent:
				upper := upperOf(s)
				if upper == maxField {
					l.log.Error("mmlock: intent-reader count field overflow")
					return -1, qerrors.ErrOverflow
				}
				next = makeShared(tag, upper+1, lowerOf(s))
			default:
				return -1, nil // tagExcl
			}

		case reqIntentWrite:
			switch tag {
			case tagFree:
				next = makeShared(tagIntent, 0, 1)
			case tagIntent:
				lower := lowerOf(s)
				if lower == maxField {
					l.log.Error("mmlock: intent-writer count field overflow")
					return -1, qerrors.ErrOverflow
				}
				next = makeShared(tagIntent, upperOf(s), lower+1)
			default:
				return -1, nil // tagShared or tagExcl
			}

		default:
			return -1, qerrors.ErrIllegalMonitorState
		}

		if atomic.CompareAndSwapUint32(&l.state, s, next) {
			return 1, nil
		}
	}
}

// TryReleaseShared removes one unit of the requested kind. It reports
// whether the lock is now fully free (so the caller wakes waiters), and an
// error if the release does not correspond to a live unit of that kind --
// aggregated via multierr when more than one inconsistency is detectable at
// once (e.g. wrong tag AND a zero field), mirroring this package's ambient
// stack choice of combining independent validation failures into one error.
func (l *Lock) TryReleaseShared(req uint32) (bool, error) {
	for {
		s := atomic.LoadUint32(&l.state)
		tag := tagOf(s)

		var next uint32
		var errs error

		switch req {
		case reqRead:
			if tag != tagShared {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			lower := lowerOf(s)
			if lower == 0 {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			if errs != nil {
				return false, errs
			}
			lower--
			if lower == 0 && upperOf(s) == 0 {
				next = tagFree
			} else {
				next = makeShared(tagShared, upperOf(s), lower)
			}

		case reqIntentRead:
			if tag != tagShared && tag != tagIntent {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			upper := upperOf(s)
			if upper == 0 {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			if errs != nil {
				return false, errs
			}
			upper--
			if upper == 0 && lowerOf(s) == 0 {
				next = tagFree
			} else {
				next = makeShared(tag, upper, lowerOf(s))
			}

		case reqIntentWrite:
			if tag != tagIntent {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			lower := lowerOf(s)
			if lower == 0 {
				errs = multierr.Append(errs, qerrors.ErrIllegalMonitorState)
			}
			if errs != nil {
				return false, errs
			}
			lower--
			if lower == 0 && upperOf(s) == 0 {
				next = tagFree
			} else {
				next = makeShared(tagIntent, upperOf(s), lower)
			}

		default:
			return false, qerrors.ErrIllegalMonitorState
		}

		if atomic.CompareAndSwapUint32(&l.state, s, next) {
			return next == tagFree, nil
		}
	}
}

// TryAcquireExclusive attempts to take or re-enter the write lock. Only the
// calling goroutine's own prior hold permits re-entry; any other live mode
// blocks.
func (l *Lock) TryAcquireExclusive(_ uint32) (int32, error) {
	gid := goroutineID()

	for {
		s := atomic.LoadUint32(&l.state)
		switch tagOf(s) {
		case tagFree:
			if !atomic.CompareAndSwapUint32(&l.state, s, makeExcl(1)) {
				continue
			}
			atomic.StoreInt64(&l.holder, gid)
			return 0, nil // exclusive: no other waiter can also succeed

		case tagExcl:
			if atomic.LoadInt64(&l.holder) != gid {
				return -1, nil // held by someone else: wait
			}
			count := exclCount(s)
			if count == maxExclCount {
				l.log.Error("mmlock: write reentrancy count overflow")
				return -1, qerrors.ErrOverflow
			}
			if !atomic.CompareAndSwapUint32(&l.state, s, makeExcl(count+1)) {
				continue
			}
			return 0, nil

		default:
			return -1, nil // tagShared or tagIntent: wait
		}
	}
}

// TryReleaseExclusive removes one level of reentrant write hold. When the
// count reaches zero the holder field is reset to 0 -- a goroutine ID no
// real goroutine ever has, since Go numbers them from 1 -- before the state
// word itself is observed free by any other goroutine. Without this reset,
// a goroutine that previously held the lock could transiently read its own
// stale holder stamp as still current during the narrow window between the
// state CAS and a fresh stamp, and incorrectly believe it still owns the
// write lock.
func (l *Lock) TryReleaseExclusive(_ uint32) (bool, error) {
	gid := goroutineID()

	for {
		s := atomic.LoadUint32(&l.state)
		if tagOf(s) != tagExcl {
			return false, qerrors.ErrIllegalMonitorState
		}
		if atomic.LoadInt64(&l.holder) != gid {
			return false, qerrors.ErrIllegalMonitorState
		}
		count := exclCount(s)
		if count == 0 {
			return false, qerrors.ErrIllegalMonitorState
		}

		if count == 1 {
			atomic.StoreInt64(&l.holder, 0)
			if !atomic.CompareAndSwapUint32(&l.state, s, tagFree) {
				continue
			}
			return true, nil
		}

		if !atomic.CompareAndSwapUint32(&l.state, s, makeExcl(count-1)) {
			continue
		}
		return false, nil
	}
}
