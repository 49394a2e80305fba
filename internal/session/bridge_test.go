package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speaklevel/interview-gateway/internal/assess"
	"github.com/speaklevel/interview-gateway/internal/audio"
	"github.com/speaklevel/interview-gateway/internal/protocol"
	"github.com/speaklevel/interview-gateway/internal/store"
	"github.com/speaklevel/interview-gateway/internal/upstream"
)

// fakeClient is an in-memory ClientConn.
type fakeClient struct {
	in     chan []byte
	mu     sync.Mutex
	out    []protocol.ServerMessage
	closed chan struct{}
	once   sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{in: make(chan []byte, 32), closed: make(chan struct{})}
}

func (c *fakeClient) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errors.New("client closed")
	}
}

func (c *fakeClient) WriteMessage(_ int, data []byte) error {
	var msg protocol.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.out = append(c.out, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeClient) send(t *testing.T, msg protocol.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal client message: %v", err)
	}
	c.in <- data
}

func (c *fakeClient) messages() []protocol.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ServerMessage, len(c.out))
	copy(out, c.out)
	return out
}

func (c *fakeClient) has(msgType string) bool {
	for _, m := range c.messages() {
		if m.Type == msgType {
			return true
		}
	}
	return false
}

func (c *fakeClient) waitFor(t *testing.T, msgType string) protocol.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range c.messages() {
			if m.Type == msgType {
				return m
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %q message; got %+v", msgType, c.messages())
	return protocol.ServerMessage{}
}

// fakeUpstream is an in-memory Upstream.
type fakeUpstream struct {
	mu          sync.Mutex
	appended    []string
	commits     int
	responses   []string
	toolOutputs map[string]string
	clears      atomic.Int32
	events      chan upstream.Event
	closed      chan struct{}
	once        sync.Once
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		toolOutputs: make(map[string]string),
		events:      make(chan upstream.Event, 32),
		closed:      make(chan struct{}),
	}
}

func (u *fakeUpstream) Configure(upstream.SessionConfig) error { return nil }

func (u *fakeUpstream) AppendAudio(frame string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.appended = append(u.appended, frame)
	return nil
}

func (u *fakeUpstream) CommitAudio() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.commits++
	return nil
}

func (u *fakeUpstream) ClearInput() error {
	u.clears.Add(1)
	return nil
}

func (u *fakeUpstream) CreateResponse(instructions string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responses = append(u.responses, instructions)
	return nil
}

func (u *fakeUpstream) SendToolOutput(callID, output string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toolOutputs[callID] = output
	return nil
}

func (u *fakeUpstream) ReadEvent() (upstream.Event, error) {
	select {
	case ev := <-u.events:
		return ev, nil
	case <-u.closed:
		return upstream.Event{}, errors.New("upstream closed")
	}
}

func (u *fakeUpstream) Close() error {
	u.once.Do(func() { close(u.closed) })
	return nil
}

func (u *fakeUpstream) sent() (appended []string, commits int, responses []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.appended...), u.commits, append([]string(nil), u.responses...)
}

// reporterFunc adapts a function to the Reporter interface.
type reporterFunc func(context.Context, []assess.TranscriptEntry) (*assess.Report, error)

func (f reporterFunc) Generate(ctx context.Context, tr []assess.TranscriptEntry) (*assess.Report, error) {
	return f(ctx, tr)
}

// fakeRecords captures persisted records in memory.
type fakeRecords struct {
	mu      sync.Mutex
	saved   []store.Record
	surveys map[string]store.Survey
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{surveys: make(map[string]store.Survey)}
}

func (r *fakeRecords) Save(rec store.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, rec)
	return nil
}

func (r *fakeRecords) AppendSurvey(id string, s store.Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surveys[id] = s
	return nil
}

func wireFrame(ms int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, audio.ModelRate*2*ms/1000))
}

type testSession struct {
	bridge   *Bridge
	client   *fakeClient
	upstream *fakeUpstream
	records  *fakeRecords
	clock    *fakeClock
	runErr   chan error
}

func startSession(t *testing.T, reporter Reporter) *testSession {
	t.Helper()
	client := newFakeClient()
	up := newFakeUpstream()
	records := newFakeRecords()
	clock := &fakeClock{}

	if reporter == nil {
		reporter = reporterFunc(func(context.Context, []assess.TranscriptEntry) (*assess.Report, error) {
			return &assess.Report{
				ProficiencyLevel: "B1",
				CeilingPhase:     "Level-up",
				DomainAnalyses: []assess.DomainAnalysis{
					{Domain: "Fluency", Rating: 4, Observation: "steady"},
					{Domain: "Grammar", Rating: 2, Observation: "tense drift"},
				},
				StartingModule:       "Past Narration",
				OptimizationStrategy: "Shadowing",
			}, nil
		})
	}

	b := NewBridge(Config{
		ID:              "test-session",
		Client:          client,
		Upstream:        up,
		Reporter:        reporter,
		Records:         records,
		Clock:           clock,
		Guidance:        "interview guidance text",
		Instructions:    "interview",
		MinUtterance:    time.Second,
		MaxUtterance:    2 * time.Second,
		KeepalivePeriod: 10 * time.Millisecond,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(context.Background()) }()
	client.waitFor(t, protocol.TypeSessionCreated)

	s := &testSession{bridge: b, client: client, upstream: up, records: records, clock: clock, runErr: runErr}
	t.Cleanup(func() {
		up.Close()
		client.Close()
		select {
		case <-runErr:
		case <-time.After(2 * time.Second):
			t.Error("session loop did not exit")
		}
	})
	return s
}

func TestShortUtteranceDiscarded(t *testing.T) {
	s := startSession(t, nil)

	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: wireFrame(500)})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStopCapture})

	s.client.waitFor(t, protocol.TypeError)
	appended, commits, responses := s.upstream.sent()
	if len(appended) != 0 || commits != 0 || len(responses) != 0 {
		t.Fatalf("short utterance reached upstream: %d frames, %d commits, %d responses",
			len(appended), commits, len(responses))
	}

	// Session is back to Idle: a new capture is accepted and, at full
	// length, sent upstream.
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: wireFrame(1200)})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStopCapture})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, commits, _ := s.upstream.sent(); commits == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("full-length utterance after a discard was not sent upstream")
}

func TestOverlongUtteranceDiscarded(t *testing.T) {
	s := startSession(t, nil)

	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	for range 3 {
		s.client.send(t, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: wireFrame(900)})
	}
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStopCapture})

	s.client.waitFor(t, protocol.TypeError)
	if appended, commits, _ := s.upstream.sent(); len(appended) != 0 || commits != 0 {
		t.Fatalf("overlong utterance reached upstream")
	}
}

func TestIdleOnlyAfterPlaybackDrains(t *testing.T) {
	s := startSession(t, nil)

	// Participant turn: 1200ms capture.
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: wireFrame(1200)})
	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStopCapture})

	// Model reply: three frames, then the completion marker arrives before
	// the last frame's playback ends.
	for _, ms := range []int{320, 480, 200} {
		s.upstream.events <- upstream.Event{Type: upstream.EventAudioDelta, Delta: wireFrame(ms)}
	}
	s.clock.waitTimers(t, 3)
	s.upstream.events <- upstream.Event{Type: upstream.EventResponseDone}
	s.clock.waitTimers(t, 4) // drain-timeout timer joins the three frame timers

	s.clock.Advance(900 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if s.client.has(protocol.TypeResponseComplete) {
		t.Fatal("turn completed before the last frame's scheduled end")
	}

	s.clock.Advance(100 * time.Millisecond)
	s.client.waitFor(t, protocol.TypeResponseComplete)
}

func TestAudioFramesRelayedToClient(t *testing.T) {
	s := startSession(t, nil)

	s.upstream.events <- upstream.Event{Type: upstream.EventAudioDelta, Delta: wireFrame(320)}
	msg := s.client.waitFor(t, protocol.TypeAIAudio)
	if msg.Audio == "" {
		t.Fatal("relayed audio frame is empty")
	}
}

func TestMalformedModelFrameDropped(t *testing.T) {
	s := startSession(t, nil)

	s.upstream.events <- upstream.Event{Type: upstream.EventAudioDelta, Delta: "!!!bad!!!"}
	s.upstream.events <- upstream.Event{Type: upstream.EventAudioDelta, Delta: wireFrame(100)}

	// The good frame still arrives; the stream survives the bad one.
	s.client.waitFor(t, protocol.TypeAIAudio)
	for _, m := range s.client.messages() {
		if m.Type == protocol.TypeAIAudio && m.Audio == "" {
			t.Fatal("malformed frame leaked to client")
		}
	}
}

func TestGuidanceToolAnsweredInline(t *testing.T) {
	s := startSession(t, nil)

	s.upstream.events <- upstream.Event{
		Type:   upstream.EventFunctionCallArgsDone,
		Name:   "interview_guidance",
		CallID: "call-1",
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.upstream.mu.Lock()
		out := s.upstream.toolOutputs["call-1"]
		s.upstream.mu.Unlock()
		if out == "interview guidance text" {
			if s.client.has(protocol.TypeAssessmentTriggered) {
				t.Fatal("guidance call must not change phase")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("guidance tool was not answered")
}

func TestDuplicateToolCallHandledOnce(t *testing.T) {
	s := startSession(t, nil)

	// The same call arrives via arguments.done and output_item.done.
	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-9"}
	s.upstream.events <- upstream.Event{
		Type: upstream.EventOutputItemDone,
		Item: &upstream.Item{Type: "function_call", Name: "trigger_assessment", CallID: "call-9"},
	}

	s.client.waitFor(t, protocol.TypeAssessmentComplete)
	var triggers int
	for _, m := range s.client.messages() {
		if m.Type == protocol.TypeAssessmentTriggered {
			triggers++
		}
	}
	if triggers != 1 {
		t.Fatalf("assessment triggered %d times, want 1", triggers)
	}
}

func TestAssessmentDeliveryOrderAndPersistence(t *testing.T) {
	s := startSession(t, nil)

	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-2"}
	s.client.waitFor(t, protocol.TypeAssessmentComplete)

	// The structured report reaches the client before any attempt to speak
	// the summary, and the summary text is pre-announced before synthesis.
	msgs := s.client.messages()
	completeIdx, transcriptIdx := -1, -1
	var summary string
	for i, m := range msgs {
		if m.Type == protocol.TypeAssessmentComplete && completeIdx < 0 {
			completeIdx = i
			summary = m.Summary
		}
		if m.Type == protocol.TypeAITranscript && m.Text == summary && summary != "" && transcriptIdx < 0 {
			transcriptIdx = i
		}
	}
	if completeIdx < 0 {
		t.Fatal("no assessment_complete message")
	}
	if msgs[completeIdx].Report == nil || msgs[completeIdx].Report.ProficiencyLevel != "B1" {
		t.Fatalf("report missing from assessment_complete: %+v", msgs[completeIdx])
	}
	if transcriptIdx >= 0 && transcriptIdx < completeIdx {
		t.Fatal("summary pre-announcement preceded report delivery")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.records.mu.Lock()
		n := len(s.records.saved)
		s.records.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.records.mu.Lock()
	defer s.records.mu.Unlock()
	if len(s.records.saved) != 1 || s.records.saved[0].Report == nil {
		t.Fatalf("record not persisted: %+v", s.records.saved)
	}

	// The spoken summary was requested from the model.
	_, _, responses := s.upstream.sent()
	if len(responses) == 0 {
		t.Fatal("no summary speech requested")
	}
}

func TestAssessingIsTerminal(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	reporter := reporterFunc(func(ctx context.Context, _ []assess.TranscriptEntry) (*assess.Report, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return &assess.Report{ProficiencyLevel: "A2"}, nil
		}
	})
	s := startSession(t, reporter)

	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-3"}
	s.client.waitFor(t, protocol.TypeAssessmentTriggered)

	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	msg := s.client.waitFor(t, protocol.TypeError)
	if msg.Message == "" {
		t.Fatal("expected rejection message")
	}
	if appended, _, _ := s.upstream.sent(); len(appended) != 0 {
		t.Fatal("capture accepted after assessment began")
	}
}

func TestKeepaliveRunsDuringAssessment(t *testing.T) {
	block := make(chan struct{})
	reporter := reporterFunc(func(ctx context.Context, _ []assess.TranscriptEntry) (*assess.Report, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return &assess.Report{ProficiencyLevel: "A2"}, nil
		}
	})
	s := startSession(t, reporter)

	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-4"}
	s.client.waitFor(t, protocol.TypeKeepalive)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.upstream.clears.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if s.upstream.clears.Load() == 0 {
		t.Fatal("upstream keepalive never pinged")
	}

	close(block)
	s.client.waitFor(t, protocol.TypeAssessmentComplete)
	// Keepalive stops with the assessment.
	time.Sleep(30 * time.Millisecond)
	after := s.upstream.clears.Load()
	time.Sleep(50 * time.Millisecond)
	if s.upstream.clears.Load() != after {
		t.Fatal("keepalive kept running after assessment completed")
	}
}

func TestAssessmentFailureStillTerminates(t *testing.T) {
	reporter := reporterFunc(func(context.Context, []assess.TranscriptEntry) (*assess.Report, error) {
		return nil, errors.New("model unavailable")
	})
	s := startSession(t, reporter)

	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-5"}
	s.client.waitFor(t, protocol.TypeError)

	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeStartCapture})
	s.client.waitFor(t, protocol.TypeError)
	if s.client.has(protocol.TypeAssessmentComplete) {
		t.Fatal("failed assessment must not deliver a report")
	}
}

func TestSurveyAppendedToRecord(t *testing.T) {
	s := startSession(t, nil)

	s.client.send(t, protocol.ClientMessage{Type: protocol.TypeSubmitSurvey, Rating: 5, Comments: "great"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.records.mu.Lock()
		survey, ok := s.records.surveys["test-session"]
		s.records.mu.Unlock()
		if ok {
			if survey.Rating != 5 || survey.Comments != "great" {
				t.Fatalf("unexpected survey: %+v", survey)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("survey never persisted")
}

func TestTranscriptAccumulates(t *testing.T) {
	var got []assess.TranscriptEntry
	var mu sync.Mutex
	reporter := reporterFunc(func(_ context.Context, tr []assess.TranscriptEntry) (*assess.Report, error) {
		mu.Lock()
		got = append([]assess.TranscriptEntry(nil), tr...)
		mu.Unlock()
		return &assess.Report{ProficiencyLevel: "B2"}, nil
	})
	s := startSession(t, reporter)

	s.upstream.events <- upstream.Event{Type: upstream.EventAudioTranscriptDone, Transcript: "Hello, how are you?"}
	s.upstream.events <- upstream.Event{Type: upstream.EventInputTranscript, Transcript: "I am fine thank you"}
	s.client.waitFor(t, protocol.TypeUserTranscript)

	s.upstream.events <- upstream.Event{Type: upstream.EventFunctionCallArgsDone, Name: "trigger_assessment", CallID: "call-6"}
	s.client.waitFor(t, protocol.TypeAssessmentComplete)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].Speaker != "interviewer" || got[1].Speaker != "participant" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
}
