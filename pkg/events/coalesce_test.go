package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescer_TickWithoutScheduleDoesNothing(t *testing.T) {
	var calls int
	c := NewCoalescer(func() { calls++ })

	c.Tick()
	c.Tick()
	assert.Equal(t, 0, calls)
}

func TestCoalescer_BurstCollapsesToOnePublish(t *testing.T) {
	var calls int
	c := NewCoalescer(func() { calls++ })

	for i := 0; i < 100; i++ {
		c.Schedule()
	}
	c.Tick()
	assert.Equal(t, 1, calls)

	// nothing new scheduled, next tick is silent
	c.Tick()
	assert.Equal(t, 1, calls)
}

func TestCoalescer_TrailingEdgeSeesLatestState(t *testing.T) {
	value := 0
	var published []int
	c := NewCoalescer(func() { published = append(published, value) })

	value = 1
	c.Schedule()
	value = 2
	c.Schedule()
	c.Tick()

	// the publish callback observes the state at tick time, not schedule time
	require.Equal(t, []int{2}, published)
}

func TestCoalescer_StopSuppressesPending(t *testing.T) {
	var calls int
	c := NewCoalescer(func() { calls++ })

	c.Schedule()
	c.Stop()
	c.Tick()
	c.Schedule()
	c.Tick()
	assert.Equal(t, 0, calls)

	// idempotent
	c.Stop()
}

func TestCoalescer_FlushPublishesPending(t *testing.T) {
	var calls int
	c := NewCoalescer(func() { calls++ })

	c.Schedule()
	c.Flush()
	assert.Equal(t, 1, calls)
}

func TestCoalescer_TickerDriven(t *testing.T) {
	var calls atomic.Int64
	var mu sync.Mutex
	c := NewCoalescer(func() {
		mu.Lock()
		defer mu.Unlock()
		calls.Add(1)
	})

	c.Start(5 * time.Millisecond)
	c.Schedule()

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, time.Second, time.Millisecond)

	c.Stop()
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}
