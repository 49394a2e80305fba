package playback

import "time"

// Clock is the scheduler's view of the output clock. Now is elapsed time on a
// monotonic playback timeline; After fires once the timeline has advanced by d.
type Clock interface {
	Now() time.Duration
	After(d time.Duration) <-chan time.Time
}

type wallClock struct {
	start time.Time
}

// NewClock returns a Clock backed by wall time, starting at zero.
func NewClock() Clock {
	return &wallClock{start: time.Now()}
}

func (c *wallClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
