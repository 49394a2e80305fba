package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/speaklevel/interview-gateway/internal/audio"
)

// ErrDrainTimeout is returned by WaitDrained when the drained signal does not
// arrive within the caller's bound. The scheduler is cancelled before it is
// returned, so the session can proceed as if playback had drained.
var ErrDrainTimeout = errors.New("playback: drain wait timed out")

// Scheduler lines up decoded audio frames for gapless output. Frames are
// placed on a virtual timeline via a running next-start cursor, so playback is
// back-to-back regardless of network arrival jitter. The drained signal fires
// when the last in-flight frame reaches its scheduled end, which is the
// authoritative "model finished speaking" event, distinct from the upstream
// response-complete data event.
type Scheduler struct {
	clock Clock
	emit  func(Scheduled)

	mu       sync.Mutex
	next     time.Duration
	nextSet  bool
	inflight int
	gen      int
	cancelCh chan struct{}
	idleCh   chan struct{} // closed while the timeline is empty
}

// Scheduled is one frame placed on the playback timeline.
type Scheduled struct {
	Frame audio.Frame
	Start time.Duration
}

// NewScheduler creates a scheduler that calls emit for each frame as it is
// placed on the timeline. emit may be nil.
func NewScheduler(clock Clock, emit func(Scheduled)) *Scheduler {
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		clock:    clock,
		emit:     emit,
		cancelCh: make(chan struct{}),
		idleCh:   idle,
	}
}

// Schedule places frame at the cursor and advances the cursor by the frame's
// duration. If the cursor is unset or already behind the output clock it snaps
// to now first. Returns the frame's start time on the playback timeline.
func (s *Scheduler) Schedule(frame audio.Frame) time.Duration {
	d := frame.Duration()

	s.mu.Lock()
	now := s.clock.Now()
	if !s.nextSet || s.next < now {
		s.next = now
		s.nextSet = true
	}
	start := s.next
	s.next += d
	s.inflight++
	if s.inflight == 1 {
		s.idleCh = make(chan struct{})
	}
	gen := s.gen
	cancel := s.cancelCh
	s.mu.Unlock()

	if s.emit != nil {
		s.emit(Scheduled{Frame: frame, Start: start})
	}

	go s.await(start+d, gen, cancel)
	return start
}

// await marks the frame complete once the output clock passes its scheduled
// end, unless the generation was cancelled first.
func (s *Scheduler) await(end time.Duration, gen int, cancel chan struct{}) {
	remaining := end - s.clock.Now()
	if remaining > 0 {
		select {
		case <-s.clock.After(remaining):
		case <-cancel:
			return
		}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.inflight--
	if s.inflight == 0 {
		close(s.idleCh)
	}
	s.mu.Unlock()
}

// Drained reports whether no frames are pending or in flight.
func (s *Scheduler) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

// WaitDrained blocks until the timeline empties, the context is cancelled, or
// timeout elapses. On timeout the scheduler is force-cancelled and
// ErrDrainTimeout returned so a lost completion signal cannot hang the
// session.
func (s *Scheduler) WaitDrained(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	idle := s.idleCh
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		s.Cancel()
		return ctx.Err()
	case <-s.clock.After(timeout):
		s.Cancel()
		return ErrDrainTimeout
	}
}

// Cancel stops every in-flight frame, clears the timeline, and resets the
// cursor to unset.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	close(s.cancelCh)
	s.cancelCh = make(chan struct{})
	if s.inflight > 0 {
		s.inflight = 0
		close(s.idleCh)
	}
	s.nextSet = false
	s.next = 0
}
