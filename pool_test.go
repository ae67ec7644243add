package gptbatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := newPool(3)
	var running, peak atomic.Int32

	futures := make([]*future[int], 20)
	for i := range futures {
		i := i
		futures[i] = submit(context.Background(), p, func(ctx context.Context) (int, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return i * i, nil
		})
	}

	for i, f := range futures {
		v, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i*i, v)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestPoolNonPositiveConcurrencyMeansOne(t *testing.T) {
	assert.Equal(t, 1, cap(newPool(0).slots))
	assert.Equal(t, 1, cap(newPool(-5).slots))
}

func TestPoolPanicBecomesError(t *testing.T) {
	p := newPool(1)
	f := submit(context.Background(), p, func(ctx context.Context) (string, error) {
		panic("before the call")
	})

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskPanicked)
	assert.Contains(t, err.Error(), "before the call")

	// The slot is released after a panic.
	g := submit(context.Background(), p, func(ctx context.Context) (string, error) { return "ok", nil })
	v, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPoolCanceledWhileWaitingForSlot(t *testing.T) {
	p := newPool(1)
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := submit(context.Background(), p, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	waiting := submit(ctx, p, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 2, nil
	})
	cancel()

	_, err := waiting.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())

	close(release)
	v, err := blocker.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFutureWaitHonoursContext(t *testing.T) {
	p := newPool(1)
	release := make(chan struct{})
	defer close(release)
	f := submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
