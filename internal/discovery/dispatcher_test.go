package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsInPostOrder(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n := g*1000 + i
				assert.NoError(t, d.Post(func() {
					mu.Lock()
					got = append(got, n)
					mu.Unlock()
				}))
			}
		}(g)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Sync(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 400)

	// Each poster's items keep their relative order.
	last := map[int]int{}
	for _, n := range got {
		g, i := n/1000, n%1000
		if prev, ok := last[g]; ok {
			assert.Greater(t, i, prev)
		}
		last[g] = i
	}
}

func TestDispatcherSingleGoroutine(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Close()

	var running, overlap int32
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Post(func() {
			mu.Lock()
			running++
			if running > 1 {
				overlap++
			}
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			running--
			mu.Unlock()
		}))
	}
	require.NoError(t, d.Sync(context.Background()))
	assert.Zero(t, overlap)
}

func TestDispatcherPostBeforeStart(t *testing.T) {
	d := NewDispatcher()
	ran := make(chan struct{})
	require.NoError(t, d.Post(func() { close(ran) }))
	assert.Equal(t, 1, d.Pending())

	d.Start()
	d.Start()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted function did not run after Start")
	}
	d.Close()
}

func TestDispatcherCloseDrainsBacklog(t *testing.T) {
	d := NewDispatcher()
	block := make(chan struct{})
	count := 0
	require.NoError(t, d.Post(func() { <-block }))
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Post(func() { count++ }))
	}
	d.Start()

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	close(block)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, 10, count)
	assert.ErrorIs(t, d.Post(func() {}), ErrDispatcherClosed)
	assert.ErrorIs(t, d.Sync(context.Background()), ErrDispatcherClosed)
	d.Close()
}

func TestDispatcherSyncHonoursContext(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Sync(ctx), context.DeadlineExceeded)
}
