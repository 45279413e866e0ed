// Package qsync is the shared substrate underneath every lock in this
// module: a blocking, cancellable acquire/release primitive whose actual
// locking semantics are supplied by a caller-implemented Predicate. Sync
// itself owns no state word; it only queues contenders and wakes them. The
// state word -- and the meaning of "acquire" -- belongs to the embedding
// primitive (mmlock, rooms, ownedlock), each of which packs its own bits
// into a uint32 manipulated solely via atomic compare-and-swap.
//
// The substrate is intentionally non-fair: a goroutine arriving at
// TryAcquire* may barge ahead of goroutines that are already queued and
// have just been woken. This matches the queueing discipline described for
// the primitives built on top of it, none of which promise fairness or
// starvation freedom.
package qsync

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Predicate supplies the acquire/release semantics for a Sync. Every method
// receives the opaque request word for the calling handle and must mutate
// state (if any) via atomic compare-and-swap only; Sync never touches state
// directly.
//
// TryAcquireShared/TryAcquireExclusive return a signal alongside the error:
// a negative signal means the caller must wait, zero means the request was
// granted with no further wakeups required, and a positive signal means the
// request was granted and additional queued waiters may now also succeed
// (e.g. another shared holder joining a compatible mode).
//
// TryReleaseShared/TryReleaseExclusive return whether the state is now
// fully free, which is this substrate's signal to wake queued contenders.
type Predicate interface {
	TryAcquireShared(arg uint32) (signal int32, err error)
	TryReleaseShared(arg uint32) (free bool, err error)
	TryAcquireExclusive(arg uint32) (signal int32, err error)
	TryReleaseExclusive(arg uint32) (free bool, err error)
}

// Option configures a Sync at construction.
type Option func(*Sync)

// WithLogger attaches a zap logger used for Debug-level tracing of the
// blocking (slow) path. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.log = l
		}
	}
}

// waiter is a single parked contender.
type waiter struct {
	ready chan struct{}
}

// Sync is the queue-based synchronizer substrate described above.
type Sync struct {
	pred Predicate
	log  *zap.Logger

	mu      sync.Mutex
	waiters *list.List // of *waiter; FIFO, protected by mu
}

// New returns a Sync whose acquire/release semantics are delegated to p.
func New(p Predicate, opts ...Option) *Sync {
	s := &Sync{pred: p, log: zap.NewNop(), waiters: list.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireShared blocks until the shared predicate succeeds or ctx is done.
// A nil ctx is treated as context.Background (never cancels).
func (s *Sync) AcquireShared(ctx context.Context, arg uint32) error {
	return s.acquire(ctx, arg, true)
}

// AcquireExclusive blocks until the exclusive predicate succeeds or ctx is done.
func (s *Sync) AcquireExclusive(ctx context.Context, arg uint32) error {
	return s.acquire(ctx, arg, false)
}

func (s *Sync) acquire(ctx context.Context, arg uint32, shared bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		sig, err := s.tryOnce(arg, shared)
		if err != nil {
			return err
		}
		if sig >= 0 {
			if sig > 0 {
				s.wakeAll()
			}
			return nil
		}
		if err := s.park(ctx); err != nil {
			return err
		}
		// Woken (or barged past); re-invoke the predicate. The state we
		// were waiting on may have been stolen by an unqueued contender.
	}
}

func (s *Sync) tryOnce(arg uint32, shared bool) (int32, error) {
	if shared {
		return s.pred.TryAcquireShared(arg)
	}
	return s.pred.TryAcquireExclusive(arg)
}

// TryAcquireShared attempts the shared predicate once, without blocking.
func (s *Sync) TryAcquireShared(arg uint32) (bool, error) {
	sig, err := s.pred.TryAcquireShared(arg)
	if err != nil {
		return false, err
	}
	if sig < 0 {
		return false, nil
	}
	if sig > 0 {
		s.wakeAll()
	}
	return true, nil
}

// TryAcquireExclusive attempts the exclusive predicate once, without blocking.
func (s *Sync) TryAcquireExclusive(arg uint32) (bool, error) {
	sig, err := s.pred.TryAcquireExclusive(arg)
	if err != nil {
		return false, err
	}
	if sig < 0 {
		return false, nil
	}
	if sig > 0 {
		s.wakeAll()
	}
	return true, nil
}

// TryAcquireSharedTimeout blocks for at most d. A timeout returns
// (false, nil); it is not an error (spec: timeouts are not errors).
func (s *Sync) TryAcquireSharedTimeout(arg uint32, d time.Duration) (bool, error) {
	return s.acquireTimeout(arg, d, true)
}

// TryAcquireExclusiveTimeout blocks for at most d.
func (s *Sync) TryAcquireExclusiveTimeout(arg uint32, d time.Duration) (bool, error) {
	return s.acquireTimeout(arg, d, false)
}

func (s *Sync) acquireTimeout(arg uint32, d time.Duration, shared bool) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.acquire(ctx, arg, shared)
	switch {
	case err == nil:
		return true, nil
	case err == context.DeadlineExceeded:
		return false, nil
	default:
		return false, err
	}
}

// ReleaseShared releases a shared hold and returns whether the state is now
// fully free.
func (s *Sync) ReleaseShared(arg uint32) (bool, error) {
	free, err := s.pred.TryReleaseShared(arg)
	if err != nil {
		return false, err
	}
	if free {
		s.wakeAll()
	}
	return free, nil
}

// ReleaseExclusive releases an exclusive hold and returns whether the state
// is now fully free.
func (s *Sync) ReleaseExclusive(arg uint32) (bool, error) {
	free, err := s.pred.TryReleaseExclusive(arg)
	if err != nil {
		return false, err
	}
	if free {
		s.wakeAll()
	}
	return free, nil
}

// park enqueues the calling goroutine as a waiter and blocks until it is
// woken or ctx is done. On cancellation the waiter is removed from the
// queue (a no-op if it was already woken) and state is left untouched.
func (s *Sync) park(ctx context.Context) error {
	w := &waiter{ready: make(chan struct{})}
	s.mu.Lock()
	el := s.waiters.PushBack(w)
	s.log.Debug("qsync: parking waiter", zap.Int("queue_len", s.waiters.Len()))
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		select {
		case <-w.ready:
			// Woken concurrently with cancellation; honor the wakeup.
			return nil
		default:
		}
		s.mu.Lock()
		s.waiters.Remove(el) // safe no-op if el already migrated out by wakeAll
		s.mu.Unlock()
		return ctx.Err()
	}
}

// wakeAll wakes every currently queued waiter. Each re-invokes its
// predicate from the top of acquire's loop; this may overwake relative to
// what strictly needs to run, but the substrate makes no fairness or
// efficiency promises and every predicate is a cheap, idempotent CAS
// attempt, so the correctness is unaffected.
func (s *Sync) wakeAll() {
	s.mu.Lock()
	old := s.waiters
	s.waiters = list.New()
	s.mu.Unlock()

	for e := old.Front(); e != nil; e = e.Next() {
		close(e.Value.(*waiter).ready)
	}
}
