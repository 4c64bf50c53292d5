package keyqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoRunsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	q := New()
	ctx := context.Background()

	gate := make(chan struct{})
	var wg sync.WaitGroup

	// Park an operation on the key so everything submitted afterwards
	// queues behind it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Do(ctx, "room", func(context.Context) error {
			<-gate
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Pending("room") == 1 }, time.Second, time.Millisecond)

	const n = 20
	var mu sync.Mutex
	var order []int

	// Pending grows at submission time, so waiting on it pins down the
	// submission order of the otherwise concurrent goroutines.
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(ctx, "room", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		require.Eventually(t, func() bool { return q.Pending("room") == i+2 }, time.Second, time.Millisecond)
	}

	close(gate)
	wg.Wait()

	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, q.Pending("room"))
}

func TestDoNeverOverlapsSameKey(t *testing.T) {
	t.Parallel()

	q := New()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(ctx, "room", func(context.Context) error {
				cur := atomic.AddInt32(&active, 1)
				if cur > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, cur)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestDoFailuresDoNotPoisonChain(t *testing.T) {
	t.Parallel()

	q := New()
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, q.Do(ctx, "room", func(context.Context) error { return boom }), boom)

	err := q.Do(ctx, "room", func(context.Context) error { panic("kaboom") })
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")

	require.NoError(t, q.Do(ctx, "room", func(context.Context) error { return nil }))
}

func TestDoDistinctKeysRunConcurrently(t *testing.T) {
	t.Parallel()

	q := New()
	ctx := context.Background()

	gate := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = q.Do(ctx, "a", func(context.Context) error {
			close(blocked)
			<-gate
			return nil
		})
	}()
	<-blocked
	defer close(gate)

	done := make(chan struct{})
	go func() {
		_ = q.Do(ctx, "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operation on an unrelated key was blocked")
	}
}

func TestPendingDropsIdleKeys(t *testing.T) {
	t.Parallel()

	q := New()
	ctx := context.Background()

	require.NoError(t, q.Do(ctx, "room", func(context.Context) error { return nil }))
	require.Equal(t, 0, q.Pending("room"))
	require.Empty(t, q.chains)
}

func TestSingleSerializes(t *testing.T) {
	t.Parallel()

	s := NewSingle()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(ctx, func(context.Context) error {
				cur := atomic.AddInt32(&active, 1)
				if cur > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, cur)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}
