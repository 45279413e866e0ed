package mmlock

import (
	"context"
	"sync/atomic"

	"github.com/corelocks/synctools/qsync"
	"github.com/corelocks/synctools/qsync/qerrors"
)

// Condition is a condition variable bound to a Lock's write handle. It is
// only valid while the calling goroutine holds that write lock, and Await
// releases exactly the reentrant count currently held (read live off the
// state word, since only the lock itself knows how many levels deep the
// caller is) and reacquires the same count on wakeup or on early return via
// a cancelled context.
type Condition struct {
	l    *Lock
	cond *qsync.Condition
}

// Await releases the full reentrant write count held by the calling
// goroutine, waits to be signalled (or for ctx to be done), then
// reacquires the same count before returning. It always returns with the
// write lock held, even when it returns a non-nil error.
func (c *Condition) Await(ctx context.Context) error {
	s := atomic.LoadUint32(&c.l.state)
	if tagOf(s) != tagExcl {
		return qerrors.ErrIllegalMonitorState
	}
	// The exclusive predicate ignores its request word entirely (write
	// reentrancy is tracked by goroutine ID, not by arg), so any fixed
	// value does the same job WriteLocker's handle uses.
	return c.cond.Await(ctx, 1, exclCount(s))
}

// Signal wakes one goroutine parked in Await, if any.
func (c *Condition) Signal() { c.cond.Signal() }

// SignalAll wakes every goroutine parked in Await.
func (c *Condition) SignalAll() { c.cond.SignalAll() }
