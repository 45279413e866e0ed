// Package ownedlock implements a reentrant exclusive lock whose notion of
// "owner" is an arbitrary application-supplied, comparable value rather
// than the identity of the calling goroutine.
//
// The teacher's (and the wider corpus's) reentrant locks all key
// reentrancy off the calling thread/goroutine; this primitive instead lets
// the caller supply who is asking. The straightforward port of the
// original design threads that owner through a goroutine-local slot set
// immediately before, and cleared immediately after, every substrate call
// -- but Go has no goroutine-local storage, and fabricating one (e.g. via
// runtime.Stack parsing as mmlock's goroutineID does for actual goroutine
// identity) would be solving a problem that doesn't need solving here: the
// owner is already a value the caller has in hand at the call site. So
// For(owner) takes it as an explicit parameter and interns it to a small
// token carried as the qsync request word, the same way Dynamic mints room
// indices for previously-unseen keys.
package ownedlock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/corelocks/synctools/qsync"
)

const maxDepth = ^uint32(0)

// Option configures a Lock at construction.
type Option func(*Lock)

// WithLogger attaches a zap logger for Debug-level tracing.
func WithLogger(l *zap.Logger) Option {
	return func(lk *Lock) {
		if l != nil {
			lk.log = l
		}
	}
}

// Lock is a reentrant exclusive lock keyed by an application-supplied
// owner rather than goroutine identity.
type Lock struct {
	state  uint32 // atomic; 0 = free, else reentrant depth
	holder int64  // atomic; owner token of the current holder, 0 = none

	tokens    sync.Map // owner any -> uint32 token
	nextToken uint32   // atomic

	log *zap.Logger
	qs  *qsync.Sync
}

// New returns a ready-to-use Lock.
func New(opts ...Option) *Lock {
	l := &Lock{log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.qs = qsync.New(l, qsync.WithLogger(l.log))
	return l
}

// For returns a handle bound to owner. Multiple handles may share the same
// owner; they are functionally equivalent and their holds are mutually
// reentrant.
func (l *Lock) For(owner any) *Handle {
	tok := l.tokenFor(owner)
	return &Handle{l: l, tok: tok, h: qsync.NewExclusiveHandle(l.qs, tok)}
}

func (l *Lock) tokenFor(owner any) uint32 {
	if v, ok := l.tokens.Load(owner); ok {
		return v.(uint32)
	}
	tok := atomic.AddUint32(&l.nextToken, 1)
	actual, _ := l.tokens.LoadOrStore(owner, tok)
	return actual.(uint32)
}

// Handle is the lock handle for one owner.
type Handle struct {
	l   *Lock
	tok uint32
	h   *qsync.Handle
}

func (h *Handle) Lock()                                 { h.h.Lock() }
func (h *Handle) LockContext(ctx context.Context) error { return h.h.LockContext(ctx) }
func (h *Handle) TryLock() bool                         { return h.h.TryLock() }
func (h *Handle) TryLockTimeout(d time.Duration) bool   { return h.h.TryLockTimeout(d) }
func (h *Handle) Unlock()                               { h.h.Unlock() }

// NewCondition returns a condition bound to this handle's owner. It must
// only be called while that owner's handle holds the lock.
func (h *Handle) NewCondition() *Condition {
	return &Condition{l: h.l, tok: h.tok, cond: h.l.qs.NewCondition()}
}
