package session

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	deadline time.Duration
	ch       chan time.Time
}

// fakeClock is a manually advanced playback timeline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []fakeTimer
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- time.Time{}
		return ch
	}
	c.timers = append(c.timers, fakeTimer{deadline: c.now + d, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var pending []fakeTimer
	var fired []chan time.Time
	for _, t := range c.timers {
		if t.deadline <= c.now {
			fired = append(fired, t.ch)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()
	for _, ch := range fired {
		ch <- time.Time{}
	}
}

// waitTimers blocks until at least n timers are registered.
func (c *fakeClock) waitTimers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.timers)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d timers", n)
}
