package events

import (
	"sync"
	"time"
)

// Coalescer collapses bursts of Schedule calls into at most one publish per
// tick. It is trailing-edge: the publish callback runs at tick time with
// whatever state is current then, so the last state of a burst is never
// dropped. Intermediate states are not queued.
//
// The tick source is pluggable: Start drives it from a time.Ticker for
// frame-style refresh, Tick drives it manually for tests and non-UI hosts.
type Coalescer struct {
	mu      sync.Mutex
	publish func()
	dirty   bool
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewCoalescer(publish func()) *Coalescer {
	return &Coalescer{
		publish: publish,
		done:    make(chan struct{}),
	}
}

// Schedule marks the state dirty. It is cheap and may be called on every
// accumulator mutation.
func (c *Coalescer) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.dirty = true
}

// Tick fires the publish callback if anything was scheduled since the last
// tick. Manual tick sources call this directly.
func (c *Coalescer) Tick() {
	c.mu.Lock()
	if c.stopped || !c.dirty {
		c.mu.Unlock()
		return
	}
	c.dirty = false
	publish := c.publish
	c.mu.Unlock()

	publish()
}

// Start launches a ticker-driven loop publishing at most once per interval.
func (c *Coalescer) Start(interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Flush publishes immediately if anything is pending. Used at stream end so
// the final accumulator state is observable before the authoritative reload.
func (c *Coalescer) Flush() {
	c.Tick()
}

// Stop suppresses all further publishes, including already scheduled ones.
// It is idempotent and safe to call from cancellation paths.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.dirty = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
}
