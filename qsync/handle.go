package qsync

import (
	"context"
	"time"
)

// Locker is the common per-lock surface shared by every primitive in this
// module: blocking lock, context-cancellable lock, try-lock, try-lock with
// timeout, and unlock. It mirrors spec.md's external-interface table
// (section 6), with LockContext standing in for "lockInterruptibly" --
// idiomatic Go threads cancellation through a context rather than a
// separate interruptible method.
//
// Lock, TryLock, and TryLockTimeout panic on any error other than
// cancellation (count overflow, illegal monitor state): like sync.Mutex,
// their signatures have no room for an error return, and spec.md treats
// both of those conditions as unrecoverable. Callers that need to handle
// overflow gracefully should use LockContext and inspect the error.
type Locker interface {
	Lock()
	LockContext(ctx context.Context) error
	TryLock() bool
	TryLockTimeout(d time.Duration) bool
	Unlock()
}

// ConditionVar is the common surface for a condition obtained from an
// exclusive-mode handle.
type ConditionVar interface {
	Await(ctx context.Context) error
	Signal()
	SignalAll()
}

// Handle adapts a Sync plus a fixed request word into a Locker. It is
// shared by every exclusive and shared-mode lock handle in this module
// (spec.md section 9's design note: model the per-mode handles as small
// parameterized structs, not distinct types).
type Handle struct {
	s      *Sync
	shared bool
	arg    uint32
}

// NewSharedHandle returns a Locker that acquires s's shared path with the
// fixed request word arg.
func NewSharedHandle(s *Sync, arg uint32) *Handle {
	return &Handle{s: s, shared: true, arg: arg}
}

// NewExclusiveHandle returns a Locker that acquires s's exclusive path with
// the fixed request word arg.
func NewExclusiveHandle(s *Sync, arg uint32) *Handle {
	return &Handle{s: s, shared: false, arg: arg}
}

func (h *Handle) Lock() {
	if err := h.LockContext(context.Background()); err != nil {
		panic(err)
	}
}

// LockContext blocks until acquired or ctx is done.
func (h *Handle) LockContext(ctx context.Context) error {
	if h.shared {
		return h.s.AcquireShared(ctx, h.arg)
	}
	return h.s.AcquireExclusive(ctx, h.arg)
}

func (h *Handle) TryLock() bool {
	var ok bool
	var err error
	if h.shared {
		ok, err = h.s.TryAcquireShared(h.arg)
	} else {
		ok, err = h.s.TryAcquireExclusive(h.arg)
	}
	if err != nil {
		panic(err)
	}
	return ok
}

func (h *Handle) TryLockTimeout(d time.Duration) bool {
	var ok bool
	var err error
	if h.shared {
		ok, err = h.s.TryAcquireSharedTimeout(h.arg, d)
	} else {
		ok, err = h.s.TryAcquireExclusiveTimeout(h.arg, d)
	}
	if err != nil {
		panic(err)
	}
	return ok
}

func (h *Handle) Unlock() {
	var err error
	if h.shared {
		_, err = h.s.ReleaseShared(h.arg)
	} else {
		_, err = h.s.ReleaseExclusive(h.arg)
	}
	if err != nil {
		panic(err)
	}
}

// Arg returns the handle's fixed request word.
func (h *Handle) Arg() uint32 { return h.arg }

// Shared reports whether this handle uses the shared acquire/release path.
func (h *Handle) Shared() bool { return h.shared }
