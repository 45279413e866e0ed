package ownedlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type owner struct{ name string }

func TestReentrantSameOwner(t *testing.T) {
	l := New()
	o1 := &owner{"o1"}

	h1 := l.For(o1)
	h2 := l.For(o1)
	require.True(t, h1.TryLock())
	assert.True(t, h2.TryLock(), "same owner re-enters")
	h2.Unlock()
	h1.Unlock()
}

func TestDifferentOwnerBlocked(t *testing.T) {
	l := New()
	o1, o2 := &owner{"o1"}, &owner{"o2"}

	h1 := l.For(o1)
	h2 := l.For(o2)
	require.True(t, h1.TryLock())
	assert.False(t, h2.TryLock())
	h1.Unlock()
	assert.True(t, h2.TryLock())
	h2.Unlock()
}

func TestOwnerIdentityIsNotGoroutineIdentity(t *testing.T) {
	l := New()
	o1 := &owner{"shared"}

	h1 := l.For(o1)
	require.True(t, h1.TryLock())

	done := make(chan bool)
	go func() {
		h2 := l.For(o1) // same owner, different goroutine
		done <- h2.TryLock()
	}()
	assert.True(t, <-done, "a different goroutine acting for the same owner re-enters")
	h1.Unlock()
}

func TestReleaseWithoutHoldPanics(t *testing.T) {
	l := New()
	h := l.For(&owner{"o"})
	assert.Panics(t, func() { h.Unlock() })
}

func TestReleaseByWrongOwnerPanics(t *testing.T) {
	l := New()
	o1, o2 := &owner{"o1"}, &owner{"o2"}
	h1 := l.For(o1)
	h2 := l.For(o2)
	require.True(t, h1.TryLock())
	assert.Panics(t, func() { h2.Unlock() })
	h1.Unlock()
}

func TestReleaseWithoutHoldAggregatesBothViolations(t *testing.T) {
	l := New()
	h := l.For(&owner{"o"})
	_, err := l.TryReleaseExclusive(h.tok)
	require.Error(t, err)
	assert.Equal(t, 2, len(multierr.Errors(err)))
}

func TestConditionAwaitSignal(t *testing.T) {
	l := New()
	o := &owner{"o"}
	h := l.For(o)
	cond := h.NewCondition()

	ready := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h2 := l.For(o)
		h2.Lock()
		close(ready)
		require.NoError(t, cond.Await(context.Background()))
		h2.Unlock()
	}()

	<-ready
	// A second owner, so this Lock waits for Await's release instead of
	// re-entering o's hold.
	signaller := l.For(&owner{"signaller"})
	signaller.Lock()
	cond.Signal()
	signaller.Unlock()
	wg.Wait()
}

func TestLockContextTimeout(t *testing.T) {
	l := New()
	o1, o2 := &owner{"o1"}, &owner{"o2"}
	h1 := l.For(o1)
	require.True(t, h1.TryLock())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.For(o2).LockContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	h1.Unlock()
}
