package mmlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestReadReadCompatible(t *testing.T) {
	l := New()
	r1 := l.ReadLock()
	r2 := l.ReadLock()
	require.True(t, r1.TryLock())
	require.True(t, r2.TryLock())
	r1.Unlock()
	r2.Unlock()
}

func TestReadIntentWriteIncompatible(t *testing.T) {
	l := New()
	r := l.ReadLock()
	iw := l.IntentWriteLock()
	require.True(t, r.TryLock())
	assert.False(t, iw.TryLock())
	r.Unlock()
	assert.True(t, iw.TryLock())
	iw.Unlock()
}

func TestIntentReadMergesIntoEitherFamily(t *testing.T) {
	l := New()
	r := l.ReadLock()
	require.True(t, r.TryLock())
	ir := l.IntentReadLock()
	assert.True(t, ir.TryLock()) // merges into the shared tag alongside r
	ir.Unlock()
	r.Unlock()

	iw := l.IntentWriteLock()
	require.True(t, iw.TryLock())
	ir2 := l.IntentReadLock()
	assert.True(t, ir2.TryLock()) // merges into the intent tag alongside iw
	ir2.Unlock()
	iw.Unlock()
}

func TestWriteExcludesEverything(t *testing.T) {
	l := New()
	w := l.WriteLock()
	require.True(t, w.TryLock())

	assert.False(t, l.ReadLock().TryLock())
	assert.False(t, l.IntentReadLock().TryLock())
	assert.False(t, l.IntentWriteLock().TryLock())

	w.Unlock()
	assert.True(t, l.ReadLock().TryLock())
}

func TestWriteReentrant(t *testing.T) {
	l := New()
	w1 := l.WriteLock()
	w2 := l.WriteLock()
	require.True(t, w1.TryLock())
	require.True(t, w2.TryLock(), "same goroutine may re-enter write mode")
	w2.Unlock()
	w1.Unlock()

	assert.True(t, l.ReadLock().TryLock())
}

func TestWriteReentrancyIsPerGoroutine(t *testing.T) {
	l := New()
	w := l.WriteLock()
	require.True(t, w.TryLock())

	done := make(chan bool)
	go func() {
		other := l.WriteLock()
		done <- other.TryLock()
	}()
	assert.False(t, <-done, "a different goroutine must not re-enter")
	w.Unlock()
}

func TestReleaseWithoutHoldIsIllegalMonitorState(t *testing.T) {
	l := New()
	assert.Panics(t, func() { l.ReadLock().Unlock() })
	assert.Panics(t, func() { l.WriteLock().Unlock() })
}

func TestReadOverflow(t *testing.T) {
	l := New()
	var held []interface{ Unlock() }
	for i := uint32(0); i < maxField; i++ {
		r := l.ReadLock()
		require.True(t, r.TryLock())
		held = append(held, r)
	}
	assert.Panics(t, func() { l.ReadLock().Lock() })
	for _, h := range held {
		h.Unlock()
	}
}

func TestWriteLockContextCancellation(t *testing.T) {
	l := New()
	w1 := l.WriteLock()
	require.True(t, w1.TryLock())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// A different goroutine: the holding goroutine itself would re-enter.
	errc := make(chan error)
	go func() { errc <- l.WriteLock().LockContext(ctx) }()
	err := <-errc
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	w1.Unlock()
}

// TestWriteReentrantAwaitRoundTrip exercises Condition.Await while the
// calling goroutine holds the write lock at reentrant depth 2: Await must
// release both levels before parking (otherwise the lock never looks free
// to the signalling goroutine) and restore both on the way back out.
func TestWriteReentrantAwaitRoundTrip(t *testing.T) {
	l := New()
	w1 := l.WriteLock()
	cond, err := w1.NewCondition()
	require.NoError(t, err)

	ready := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.True(t, w1.TryLock())
		w2 := l.WriteLock()
		require.True(t, w2.TryLock(), "reentrant depth 2")
		close(ready)
		require.NoError(t, cond.Await(context.Background()))
		w2.Unlock()
		w1.Unlock()
	}()

	<-ready
	w := l.WriteLock()
	w.Lock() // only succeeds once Await has released the full depth-2 hold
	cond.Signal()
	w.Unlock()
	wg.Wait()
}

// TestConcurrentReadersAndWritersErrgroup stresses the read/write path with
// an errgroup-coordinated fan-out so a single misbehaving goroutine fails
// the whole run via the group's first error, rather than being silently
// swallowed.
func TestConcurrentReadersAndWritersErrgroup(t *testing.T) {
	l := New()
	const readers = 30

	var g errgroup.Group
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			r := l.ReadLock()
			if err := r.LockContext(context.Background()); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
			r.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		w := l.WriteLock()
		if err := w.LockContext(context.Background()); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		w.Unlock()
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestConditionAwaitSignal(t *testing.T) {
	l := New()
	w := l.WriteLock()
	cond, err := w.NewCondition()
	require.NoError(t, err)

	ready := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w2 := l.WriteLock()
		w2.Lock()
		close(ready)
		require.NoError(t, cond.Await(context.Background()))
		w2.Unlock()
	}()

	<-ready
	w.Lock()
	cond.Signal()
	w.Unlock()
	wg.Wait()
}

func TestConditionRequiresExclusiveHold(t *testing.T) {
	l := New()
	w := l.WriteLock()
	cond, err := w.NewCondition()
	require.NoError(t, err)
	assert.Error(t, cond.Await(context.Background()))
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	l := New()
	const readers = 20
	var wg sync.WaitGroup
	wg.Add(readers + 1)

	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			r := l.ReadLock()
			r.Lock()
			time.Sleep(time.Millisecond)
			r.Unlock()
		}()
	}
	go func() {
		defer wg.Done()
		w := l.WriteLock()
		w.Lock()
		time.Sleep(time.Millisecond)
		w.Unlock()
	}()
	wg.Wait()
}
