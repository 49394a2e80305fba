package trace

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const maxTextLen = 500

type traceMsg struct {
	kind string // "turn", "assessment", "end"
	turn Turn
	asmt Assessment
}

// Tracer writes trace data asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver).
type Tracer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer creates a tracer bound to a session and records the session row.
// Must call Close when done.
func NewTracer(store *Store, sessionID, metadata string) *Tracer {
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	if err := store.CreateSession(sessionID, metadata); err != nil {
		slog.Warn("trace session create failed", "error", err)
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	handlers := map[string]func() error{
		"turn":       func() error { return t.store.CreateTurn(m.turn) },
		"assessment": func() error { return t.store.CreateAssessment(m.asmt) },
		"end":        func() error { return t.store.EndSession(t.sessionID) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

// RecordTurn records one transcript line.
func (t *Tracer) RecordTurn(speaker, text string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{kind: "turn", turn: Turn{
		ID:        uuid.NewString(),
		SessionID: t.sessionID,
		Speaker:   speaker,
		Text:      truncate(text, maxTextLen),
		CreatedAt: time.Now(),
	}}
}

// RecordAssessment records the outcome of a report-generation run.
func (t *Tracer) RecordAssessment(proficiencyLevel, ceilingPhase string, durationMs float64, status string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{kind: "assessment", asmt: Assessment{
		ID:               uuid.NewString(),
		SessionID:        t.sessionID,
		ProficiencyLevel: proficiencyLevel,
		CeilingPhase:     ceilingPhase,
		DurationMs:       durationMs,
		Status:           status,
		CreatedAt:        time.Now(),
	}}
}

// Close marks the session ended, drains pending writes, and shuts down the
// background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.ch <- traceMsg{kind: "end"}
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
