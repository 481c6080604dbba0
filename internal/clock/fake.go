package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. Tickers fire only when
// Advance moves time past their next deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	changed *sync.Cond
}

type fakeTicker struct {
	ch       chan time.Time
	next     time.Time
	interval time.Duration
	stopped  bool
}

// Fake returns a FakeClock starting at the given time.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker. Panics if d <= 0, matching time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		ch:       make(chan time.Time, 1),
		next:     c.now.Add(d),
		interval: d,
	}
	c.tickers = append(c.tickers, ft)
	c.changed.Broadcast()

	return &Ticker{
		C: ft.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the clock forward and fires every ticker whose deadline
// falls inside the window. Sends are non-blocking; a ticker whose
// channel is still full drops the tick, like time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var fire []*fakeTicker
	for _, ft := range c.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(now) {
			fire = append(fire, ft)
			ft.next = ft.next.Add(ft.interval)
		}
	}
	c.mu.Unlock()

	for _, ft := range fire {
		select {
		case ft.ch <- now:
		default:
		}
	}
}

// WaitForTickers blocks until at least n active tickers are registered.
// Call it before the first Advance to avoid racing the goroutine that
// creates the ticker.
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) activeLocked() int {
	n := 0
	for _, ft := range c.tickers {
		if !ft.stopped {
			n++
		}
	}
	return n
}
