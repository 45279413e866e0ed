package qsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// countingMutex is a minimal Predicate: exclusive-only, a single bit of
// state, used to exercise Sync's queueing/wakeup machinery independent of
// any real primitive's bit layout.
type countingMutex struct {
	held int32 // atomic; 0 or 1
}

func (c *countingMutex) TryAcquireShared(uint32) (int32, error) {
	return -1, nil
}

func (c *countingMutex) TryReleaseShared(uint32) (bool, error) {
	return false, nil
}

func (c *countingMutex) TryAcquireExclusive(uint32) (int32, error) {
	if atomic.CompareAndSwapInt32(&c.held, 0, 1) {
		return 0, nil
	}
	return -1, nil
}

func (c *countingMutex) TryReleaseExclusive(uint32) (bool, error) {
	if !atomic.CompareAndSwapInt32(&c.held, 1, 0) {
		return false, nil
	}
	return true, nil
}

func TestAcquireExclusiveBlocksUntilReleased(t *testing.T) {
	s := New(&countingMutex{})
	require.NoError(t, s.AcquireExclusive(context.Background(), 0))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, s.AcquireExclusive(context.Background(), 0))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not have succeeded while first is held")
	case <-time.After(20 * time.Millisecond):
	}

	free, err := s.ReleaseExclusive(0)
	require.NoError(t, err)
	assert.True(t, free)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should have woken after release")
	}
}

func TestAcquireExclusiveContextCancellation(t *testing.T) {
	s := New(&countingMutex{})
	require.NoError(t, s.AcquireExclusive(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.AcquireExclusive(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryAcquireExclusiveTimeout(t *testing.T) {
	s := New(&countingMutex{})
	require.NoError(t, s.AcquireExclusive(context.Background(), 0))

	ok, err := s.TryAcquireExclusiveTimeout(0, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "timeout reports false, not an error")
}

// TestManyGoroutinesMutualExclusion stresses the substrate with a fan-out of
// contenders coordinated via errgroup: each goroutine must observe the
// counter it bumps strictly serialized by the lock, and every acquire must
// eventually succeed (no goroutine starves forever in this test's bounded
// run).
func TestManyGoroutinesMutualExclusion(t *testing.T) {
	s := New(&countingMutex{})
	var counter int
	var violations int32

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			if err := s.AcquireExclusive(context.Background(), 0); err != nil {
				return err
			}
			counter++
			local := counter
			if local != counter {
				atomic.AddInt32(&violations, 1)
			}
			_, err := s.ReleaseExclusive(0)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 50, counter)
	assert.Zero(t, atomic.LoadInt32(&violations))
}
