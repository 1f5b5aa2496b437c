package msgport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// concurrencyProbe records the order tasks ran in and the peak overlap.
type concurrencyProbe struct {
	mu     sync.Mutex
	order  []int
	active int32
	peak   int32
}

func (p *concurrencyProbe) task(n int, hold time.Duration) func() {
	return func() {
		cur := atomic.AddInt32(&p.active, 1)
		for {
			peak := atomic.LoadInt32(&p.peak)
			if cur <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, cur) {
				break
			}
		}
		time.Sleep(hold)
		p.mu.Lock()
		p.order = append(p.order, n)
		p.mu.Unlock()
		atomic.AddInt32(&p.active, -1)
	}
}

func TestRunLoopRunsInReadyOrderOneAtATime(t *testing.T) {
	loop := NewRunLoop()
	a := loop.Bind("a")
	b := loop.Bind("b")
	probe := &concurrencyProbe{}

	for i := 0; i < 6; i++ {
		lane := a
		if i%2 == 1 {
			lane = b
		}
		require.True(t, lane.Submit(probe.task(i, time.Millisecond)))
	}
	assert.Equal(t, 6, loop.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return loop.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		probe.mu.Lock()
		defer probe.mu.Unlock()
		return len(probe.order) == 6
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, loop.Run(ctx), ErrLoopRunning)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, probe.order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&probe.peak))
}

func TestRunLoopRunOnceAndStop(t *testing.T) {
	loop := NewRunLoop()
	lane := loop.Bind("x")
	assert.False(t, loop.RunOnce())

	var ran int
	lane.Submit(func() { ran++ })
	lane.Submit(func() { ran++ })
	assert.True(t, loop.RunOnce())
	assert.Equal(t, 1, ran)

	lane.Close()
	assert.False(t, lane.Submit(func() { ran++ }))
	assert.True(t, loop.RunOnce(), "tasks accepted before close still run")
	assert.Equal(t, 2, ran)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		loop.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkQueueSerialLaneKeepsOrder(t *testing.T) {
	q := NewWorkQueue(WithWorkers(4))
	lane := q.Bind("ordered")
	probe := &concurrencyProbe{}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		task := probe.task(i, 0)
		require.True(t, lane.Submit(func() { task(); wg.Done() }))
	}
	wg.Wait()

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, probe.order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&probe.peak))
}

func TestWorkQueueRunsEndpointsConcurrently(t *testing.T) {
	q := NewWorkQueue(WithWorkers(2))
	a := q.Bind("a")
	b := q.Bind("b")

	// Each task waits for the other; both finish only if they overlap.
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	done := make(chan bool, 2)
	a.Submit(func() {
		close(aStarted)
		select {
		case <-bStarted:
			done <- true
		case <-time.After(2 * time.Second):
			done <- false
		}
	})
	b.Submit(func() {
		close(bStarted)
		select {
		case <-aStarted:
			done <- true
		case <-time.After(2 * time.Second):
			done <- false
		}
	})
	assert.True(t, <-done)
	assert.True(t, <-done)
}

func TestWorkQueueEndpointConcurrency(t *testing.T) {
	q := NewWorkQueue(WithWorkers(4), WithEndpointConcurrency())
	lane := q.Bind("parallel")
	probe := &concurrencyProbe{}

	var wg sync.WaitGroup
	wg.Add(4)
	for i := 0; i < 4; i++ {
		task := probe.task(i, 50*time.Millisecond)
		require.True(t, lane.Submit(func() { task(); wg.Done() }))
	}
	wg.Wait()
	assert.Greater(t, atomic.LoadInt32(&probe.peak), int32(1))

	lane.Close()
	assert.False(t, lane.Submit(func() {}))
}

func TestWorkQueueWorkerBound(t *testing.T) {
	q := NewWorkQueue(WithWorkers(1), WithEndpointConcurrency())
	assert.Equal(t, 1, q.Workers())
	probe := &concurrencyProbe{}

	var wg sync.WaitGroup
	wg.Add(6)
	for i := 0; i < 3; i++ {
		for _, lane := range []Lane{q.Bind("a"), q.Bind("b")} {
			task := probe.task(i, 5*time.Millisecond)
			lane.Submit(func() { task(); wg.Done() })
		}
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&probe.peak))

	assert.Equal(t, 1, NewWorkQueue(WithWorkers(-3)).Workers())
}

func TestSerialLaneClose(t *testing.T) {
	lane := NewWorkQueue().Bind("x")
	lane.Close()
	assert.False(t, lane.Submit(func() {}))
}
