package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/speaklevel/interview-gateway/internal/metrics"
)

// Registry is the only cross-session shared state: a concurrent map of live
// bridges. Sessions share nothing with each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Bridge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Bridge)}
}

// Add registers a live bridge under its session id.
func (r *Registry) Add(b *Bridge) {
	r.mu.Lock()
	r.sessions[b.ID()] = b
	r.mu.Unlock()
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
}

// Get returns the bridge for a session id.
func (r *Registry) Get(id string) (*Bridge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[id]
	return b, ok
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		metrics.SessionsActive.Dec()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Bridge, 0, len(r.sessions))
	for _, b := range r.sessions {
		out = append(out, b)
	}
	return out
}

// SweepIdle shuts down sessions whose last activity is older than maxIdle.
// Returns how many were removed.
func (r *Registry) SweepIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var swept int
	for _, b := range r.snapshot() {
		if b.LastActivity().After(cutoff) {
			continue
		}
		slog.Info("sweeping idle session", "session_id", b.ID(), "last_activity", b.LastActivity())
		r.teardown(ctx, b)
		swept++
		metrics.SessionsSwept.Inc()
	}
	return swept
}

// RunSweeper sweeps periodically until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepIdle(ctx, maxIdle)
		}
	}
}

// ShutdownAll tears down every live session and waits for them within ctx's
// bound. Per-session teardown runs in parallel; the registry lock is never
// held while waiting on a session, so one stuck session cannot deadlock the
// rest.
func (r *Registry) ShutdownAll(ctx context.Context) {
	bridges := r.snapshot()
	if len(bridges) == 0 {
		return
	}
	slog.Info("shutting down all sessions", "count", len(bridges))

	var wg sync.WaitGroup
	for _, b := range bridges {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			r.teardown(ctx, b)
		}(b)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("session shutdown exceeded deadline", "remaining", r.Len())
	}
}

// teardown cancels a session's tasks in order (keepalive first, then
// assessment), closes both connections, waits for the event loop, and removes
// the session.
func (r *Registry) teardown(ctx context.Context, b *Bridge) {
	b.CancelKeepalive()
	b.CancelAssessment()
	b.CloseUpstream()
	b.CloseClient()
	select {
	case <-b.Done():
	case <-ctx.Done():
	}
	r.Remove(b.ID())
}
