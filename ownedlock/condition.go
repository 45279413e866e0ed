package ownedlock

import (
	"context"
	"sync/atomic"

	"github.com/corelocks/synctools/qsync"
	"github.com/corelocks/synctools/qsync/qerrors"
)

// Condition is a condition variable bound to one owner's hold of a Lock.
// Every operation is only valid while that owner's handle holds the lock.
type Condition struct {
	l    *Lock
	tok  uint32
	cond *qsync.Condition
}

// Await releases the full reentrant depth held by the owner bound to this
// condition, waits to be signalled (or for ctx to be done), then
// reacquires the same depth before returning. The owner's token, not the
// depth, is the request word the exclusive predicate checks on every
// call; passing the depth in its place (as opposed to the token) would
// make every release but the first-ever-registered owner's fail with
// ErrIllegalMonitorState.
func (c *Condition) Await(ctx context.Context) error {
	s := atomic.LoadUint32(&c.l.state)
	if s == 0 {
		return qerrors.ErrIllegalMonitorState
	}
	return c.cond.Await(ctx, c.tok, s)
}

// Signal wakes one goroutine parked in Await, if any.
func (c *Condition) Signal() { c.cond.Signal() }

// SignalAll wakes every goroutine parked in Await.
func (c *Condition) SignalAll() { c.cond.SignalAll() }
