// Package session owns the per-session relay between a participant client and
// the upstream speech model, plus the registry that supervises all sessions.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speaklevel/interview-gateway/internal/assess"
	"github.com/speaklevel/interview-gateway/internal/audio"
	"github.com/speaklevel/interview-gateway/internal/metrics"
	"github.com/speaklevel/interview-gateway/internal/playback"
	"github.com/speaklevel/interview-gateway/internal/protocol"
	"github.com/speaklevel/interview-gateway/internal/store"
	"github.com/speaklevel/interview-gateway/internal/trace"
	"github.com/speaklevel/interview-gateway/internal/upstream"
)

// Tool names the model is allowed to invoke. Dispatch is closed: anything
// else is logged and ignored.
const (
	toolInterviewGuidance = "interview_guidance"
	toolTriggerAssessment = "trigger_assessment"
)

// Upstream is the bridge's view of the realtime model connection.
type Upstream interface {
	Configure(upstream.SessionConfig) error
	AppendAudio(wireFrame string) error
	CommitAudio() error
	ClearInput() error
	CreateResponse(instructions string) error
	SendToolOutput(callID, output string) error
	ReadEvent() (upstream.Event, error)
	Close() error
}

// Reporter generates the structured proficiency report. Potentially slow;
// must observe ctx cancellation.
type Reporter interface {
	Generate(ctx context.Context, transcript []assess.TranscriptEntry) (*assess.Report, error)
}

// RecordStore persists completed-session records.
type RecordStore interface {
	Save(store.Record) error
	AppendSurvey(sessionID string, survey store.Survey) error
}

// Config wires one bridge.
type Config struct {
	ID       string
	Client   ClientConn
	Upstream Upstream
	Reporter Reporter
	Records  RecordStore   // optional
	Tracer   *trace.Tracer // optional, nil-safe
	Clock    playback.Clock

	Instructions string // live interviewer system prompt
	Guidance     string // answered to the interview_guidance tool
	Voice        string

	MinUtterance    time.Duration
	MaxUtterance    time.Duration
	DrainTimeout    time.Duration
	KeepalivePeriod time.Duration
}

// task is one cancellable background unit tied to the session.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type internalKind int

const (
	evDrained internalKind = iota
	evAssessmentDone
)

type internalEvent struct {
	kind     internalKind
	timedOut bool
	report   *assess.Report
	err      error
	started  time.Time
}

// Bridge relays one client connection and one upstream connection. All state
// below taskMu is owned by the Run event loop; registry teardown only touches
// the connections and task handles.
type Bridge struct {
	cfg   Config
	send  func(protocol.ServerMessage)
	sched *playback.Scheduler

	phase        Phase
	transcript   []assess.TranscriptEntry
	capture      []string // buffered wire frames for the current utterance
	captureDur   time.Duration
	responseDone bool
	drainWaiting bool
	greeted      bool
	handledCalls map[string]bool
	turnStarted  time.Time

	internal     chan internalEvent
	runCtx       context.Context
	cancelRun    context.CancelFunc
	done         chan struct{}
	lastActivity atomic.Int64

	taskMu     sync.Mutex
	keepalive  *task
	assessment *task
}

// NewBridge creates a bridge; call Run to start relaying.
func NewBridge(cfg Config) *Bridge {
	if cfg.MinUtterance <= 0 {
		cfg.MinUtterance = time.Second
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 60 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.KeepalivePeriod <= 0 {
		cfg.KeepalivePeriod = 3 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = playback.NewClock()
	}

	b := &Bridge{
		cfg:          cfg,
		send:         newSender(cfg.Client),
		internal:     make(chan internalEvent, 8),
		done:         make(chan struct{}),
		handledCalls: make(map[string]bool),
	}
	b.sched = playback.NewScheduler(cfg.Clock, func(sc playback.Scheduled) {
		b.send(protocol.AIAudio(base64.StdEncoding.EncodeToString(sc.Frame.PCM)))
	})
	b.touch()
	return b
}

// ID returns the session id.
func (b *Bridge) ID() string { return b.cfg.ID }

// Done is closed when the event loop exits.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// LastActivity is the time of the most recent client or upstream event.
func (b *Bridge) LastActivity() time.Time {
	return time.Unix(0, b.lastActivity.Load())
}

func (b *Bridge) touch() {
	b.lastActivity.Store(time.Now().UnixNano())
}

// Run drives the session until a connection drops, the client ends the
// session, or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.runCtx = ctx
	b.cancelRun = cancel
	defer cancel()
	defer close(b.done)
	defer b.sched.Cancel()

	b.send(protocol.SessionCreated(b.cfg.ID))

	clientCh := make(chan protocol.ClientMessage)
	clientErr := make(chan error, 1)
	go b.readClient(clientCh, clientErr)

	upstreamCh := make(chan upstream.Event)
	upstreamErr := make(chan error, 1)
	go b.readUpstream(upstreamCh, upstreamErr)

	slog.Info("session started", "session_id", b.cfg.ID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-clientCh:
			if stop := b.handleClient(msg); stop {
				return nil
			}
		case err := <-clientErr:
			slog.Info("client disconnected", "session_id", b.cfg.ID, "error", err)
			return nil
		case ev := <-upstreamCh:
			b.handleUpstream(ev)
		case err := <-upstreamErr:
			if b.phase != PhaseTerminated {
				b.send(protocol.Error("interview connection lost"))
				metrics.Errors.WithLabelValues("upstream", "transport").Inc()
			}
			b.phase = PhaseTerminated
			return err
		case ev := <-b.internal:
			b.handleInternal(ev)
		}
	}
}

func (b *Bridge) readClient(ch chan<- protocol.ClientMessage, errCh chan<- error) {
	for {
		_, data, err := b.cfg.Client.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		msg, err := protocol.DecodeClient(data)
		if err != nil {
			slog.Warn("bad client message", "session_id", b.cfg.ID, "error", err)
			continue
		}
		select {
		case ch <- msg:
		case <-b.runCtx.Done():
			return
		}
	}
}

func (b *Bridge) readUpstream(ch chan<- upstream.Event, errCh chan<- error) {
	for {
		ev, err := b.cfg.Upstream.ReadEvent()
		if err != nil {
			errCh <- err
			return
		}
		select {
		case ch <- ev:
		case <-b.runCtx.Done():
			return
		}
	}
}

// handleClient processes one client message. Returns true when the session
// should end.
func (b *Bridge) handleClient(msg protocol.ClientMessage) bool {
	b.touch()

	switch msg.Type {
	case protocol.TypeStartCapture:
		b.startCapture()
	case protocol.TypeAudio:
		b.bufferAudio(msg.Audio)
	case protocol.TypeStopCapture:
		b.stopCapture()
	case protocol.TypeSubmitSurvey:
		b.submitSurvey(msg.Rating, msg.Comments)
	case protocol.TypePing:
		b.send(protocol.Pong())
	case protocol.TypeEndSession:
		slog.Info("session ended by client", "session_id", b.cfg.ID)
		b.phase = PhaseTerminated
		return true
	default:
		slog.Warn("unknown client message", "session_id", b.cfg.ID, "type", msg.Type)
	}
	return false
}

// startCapture begins a participant turn. Rejected while the model is
// speaking, while a turn is already being captured, or after the assessment
// branch has begun.
func (b *Bridge) startCapture() {
	if b.phase.Terminal() {
		b.send(protocol.Error("the interview is over"))
		return
	}
	if !b.phase.CanStartCapture() {
		slog.Debug("start_capture rejected", "session_id", b.cfg.ID, "phase", b.phase)
		return
	}
	b.phase = PhaseRecording
	b.capture = nil
	b.captureDur = 0
}

func (b *Bridge) bufferAudio(wireFrame string) {
	if b.phase != PhaseRecording {
		return
	}
	frame, err := audio.Decode(wireFrame)
	if err != nil {
		slog.Warn("dropping malformed capture frame", "session_id", b.cfg.ID, "error", err)
		metrics.AudioDecodeErrors.Inc()
		return
	}
	b.capture = append(b.capture, wireFrame)
	b.captureDur += frame.Duration()
}

// stopCapture ends the participant turn. Utterances outside the accepted
// duration window are discarded and the session returns to Idle without any
// upstream send.
func (b *Bridge) stopCapture() {
	if b.phase != PhaseRecording {
		return
	}

	switch {
	case b.captureDur < b.cfg.MinUtterance:
		metrics.UtterancesDiscarded.WithLabelValues("too_short").Inc()
		b.send(protocol.Error("utterance too short, please hold and speak a little longer"))
		b.phase = PhaseIdle
		b.capture = nil
		return
	case b.captureDur > b.cfg.MaxUtterance:
		metrics.UtterancesDiscarded.WithLabelValues("too_long").Inc()
		b.send(protocol.Error("utterance exceeded the maximum length, please keep turns under a minute"))
		b.phase = PhaseIdle
		b.capture = nil
		return
	}

	for _, frame := range b.capture {
		if err := b.cfg.Upstream.AppendAudio(frame); err != nil {
			b.failUpstream("send audio", err)
			return
		}
	}
	if err := b.cfg.Upstream.CommitAudio(); err != nil {
		b.failUpstream("commit audio", err)
		return
	}
	if err := b.cfg.Upstream.CreateResponse(""); err != nil {
		b.failUpstream("request response", err)
		return
	}

	metrics.Turns.Inc()
	b.capture = nil
	b.turnStarted = time.Now()
	b.phase = PhaseAwaitingModel
}

func (b *Bridge) submitSurvey(rating int, comments string) {
	if b.cfg.Records == nil {
		return
	}
	survey := store.Survey{Rating: rating, Comments: comments, SubmittedAt: time.Now().UTC()}
	if err := b.cfg.Records.AppendSurvey(b.cfg.ID, survey); err != nil {
		slog.Error("survey append failed", "session_id", b.cfg.ID, "error", err)
		b.send(protocol.Error("could not save survey"))
		return
	}
	slog.Info("survey saved", "session_id", b.cfg.ID, "rating", rating)
}

func (b *Bridge) handleUpstream(ev upstream.Event) {
	b.touch()

	switch ev.Type {
	case upstream.EventSessionCreated:
		b.configureUpstream()
	case upstream.EventSessionUpdated:
		b.greet()
	case upstream.EventAudioDelta:
		b.relayAudio(ev.Delta)
	case upstream.EventAudioTranscriptDelta:
		b.markSpeaking()
		b.send(protocol.AITranscript(ev.Delta))
	case upstream.EventAudioTranscriptDone:
		b.recordLine("interviewer", ev.Transcript)
	case upstream.EventInputTranscript:
		b.send(protocol.UserTranscript(ev.Transcript))
		b.recordLine("participant", ev.Transcript)
	case upstream.EventFunctionCallArgsDone:
		b.dispatchTool(ev.Name, ev.CallID)
	case upstream.EventOutputItemDone:
		if ev.Item != nil && ev.Item.Type == "function_call" {
			b.dispatchTool(ev.Item.Name, ev.Item.CallID)
		}
	case upstream.EventResponseDone:
		b.responseDone = true
		b.awaitDrain()
	case upstream.EventError:
		msg := "upstream error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		slog.Error("upstream error event", "session_id", b.cfg.ID, "message", msg)
		metrics.Errors.WithLabelValues("upstream", "event").Inc()
		b.send(protocol.Error(msg))
	}
}

func (b *Bridge) configureUpstream() {
	transcription := &upstream.Transcription{Model: "whisper-1"}
	err := b.cfg.Upstream.Configure(upstream.SessionConfig{
		Instructions:            b.cfg.Instructions,
		Voice:                   b.cfg.Voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: transcription,
		Tools: []upstream.Tool{
			{
				Type:        "function",
				Name:        toolInterviewGuidance,
				Description: "Load the interview guideline text. Must be called before the first spoken response.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			{
				Type:        "function",
				Name:        toolTriggerAssessment,
				Description: "End the interview and hand the transcript to the examiner. Must be called after saying goodbye.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
		ToolChoice: "auto",
	})
	if err != nil {
		b.failUpstream("configure", err)
		return
	}
	b.send(protocol.SessionReady())
}

// greet asks the model to open the interview once the configuration is
// acknowledged.
func (b *Bridge) greet() {
	if b.greeted {
		return
	}
	b.greeted = true
	b.send(protocol.SetupComplete())
	if err := b.cfg.Upstream.CreateResponse(""); err != nil {
		b.failUpstream("greeting", err)
		return
	}
	b.turnStarted = time.Now()
	b.phase = PhaseAwaitingModel
}

func (b *Bridge) relayAudio(delta string) {
	frame, err := audio.Decode(delta)
	if err != nil {
		slog.Warn("dropping malformed model frame", "session_id", b.cfg.ID, "error", err)
		metrics.AudioDecodeErrors.Inc()
		return
	}
	b.markSpeaking()
	b.sched.Schedule(frame)
	metrics.AudioFramesRelayed.Inc()
}

// markSpeaking moves AwaitingModel to ModelSpeaking on the first fragment of
// a model turn.
func (b *Bridge) markSpeaking() {
	if b.phase == PhaseAwaitingModel {
		b.phase = PhaseModelSpeaking
	}
}

func (b *Bridge) recordLine(speaker, text string) {
	if text == "" {
		return
	}
	b.transcript = append(b.transcript, assess.TranscriptEntry{Speaker: speaker, Text: text})
	b.cfg.Tracer.RecordTurn(speaker, text)
}

// awaitDrain starts the single waiter that joins "all audio data received"
// with "audio actually heard". The phase transition back to Idle happens only
// when the waiter reports drained, with the scheduler's bounded timeout as a
// safety net.
func (b *Bridge) awaitDrain() {
	if b.drainWaiting {
		return
	}
	b.drainWaiting = true
	go func() {
		err := b.sched.WaitDrained(b.runCtx, b.cfg.DrainTimeout)
		if errors.Is(err, context.Canceled) {
			return
		}
		select {
		case b.internal <- internalEvent{kind: evDrained, timedOut: errors.Is(err, playback.ErrDrainTimeout)}:
		case <-b.runCtx.Done():
		}
	}()
}

func (b *Bridge) dispatchTool(name, callID string) {
	if callID == "" || b.handledCalls[callID] {
		return
	}
	b.handledCalls[callID] = true

	switch name {
	case toolInterviewGuidance:
		slog.Info("serving interview guidance", "session_id", b.cfg.ID)
		if err := b.cfg.Upstream.SendToolOutput(callID, b.cfg.Guidance); err != nil {
			slog.Error("tool output failed", "session_id", b.cfg.ID, "tool", name, "error", err)
			metrics.Errors.WithLabelValues("tool", "send").Inc()
		}
	case toolTriggerAssessment:
		b.enterAssessing()
	default:
		slog.Warn("unrecognized tool call", "session_id", b.cfg.ID, "tool", name)
		metrics.Errors.WithLabelValues("tool", "unknown").Inc()
	}
}

// enterAssessing is terminal for the interview loop: no further recording is
// permitted. Report generation runs in the background with a keepalive pinging
// both sides while it does.
func (b *Bridge) enterAssessing() {
	if b.phase.Terminal() {
		return
	}
	b.phase = PhaseAssessing
	b.send(protocol.AssessmentTriggered())
	b.send(protocol.AssessmentProgress("Analyzing your interview, this takes a few seconds."))
	slog.Info("assessment started", "session_id", b.cfg.ID, "transcript_lines", len(b.transcript))

	transcript := make([]assess.TranscriptEntry, len(b.transcript))
	copy(transcript, b.transcript)

	assessCtx, cancelAssess := context.WithCancel(b.runCtx)
	atask := &task{cancel: cancelAssess, done: make(chan struct{})}
	keepCtx, cancelKeep := context.WithCancel(assessCtx)
	ktask := &task{cancel: cancelKeep, done: make(chan struct{})}

	b.taskMu.Lock()
	b.assessment = atask
	b.keepalive = ktask
	b.taskMu.Unlock()

	go b.keepaliveLoop(keepCtx, ktask)
	go b.assessLoop(assessCtx, atask, ktask, transcript)
}

// keepaliveLoop pings the upstream connection (a cheap buffer clear) and the
// client while report generation runs, so neither side idles out.
func (b *Bridge) keepaliveLoop(ctx context.Context, t *task) {
	defer close(t.done)
	ticker := time.NewTicker(b.cfg.KeepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.cfg.Upstream.ClearInput(); err != nil {
				slog.Warn("upstream keepalive failed", "session_id", b.cfg.ID, "error", err)
			}
			b.send(protocol.Keepalive())
		}
	}
}

// assessLoop runs report generation. On cancellation it first cancels its own
// keepalive and awaits it, then propagates; cancellation is never swallowed.
func (b *Bridge) assessLoop(ctx context.Context, t, keep *task, transcript []assess.TranscriptEntry) {
	defer close(t.done)
	defer func() {
		keep.cancel()
		<-keep.done
	}()

	started := time.Now()
	report, err := b.cfg.Reporter.Generate(ctx, transcript)

	select {
	case b.internal <- internalEvent{kind: evAssessmentDone, report: report, err: err, started: started}:
	case <-b.runCtx.Done():
	}
}

func (b *Bridge) handleInternal(ev internalEvent) {
	switch ev.kind {
	case evDrained:
		b.onDrained(ev.timedOut)
	case evAssessmentDone:
		b.onAssessmentDone(ev)
	}
}

func (b *Bridge) onDrained(timedOut bool) {
	b.drainWaiting = false
	if !b.responseDone {
		return
	}
	b.responseDone = false
	if timedOut {
		slog.Warn("playback drain timed out, forcing turn end", "session_id", b.cfg.ID)
	}

	b.send(protocol.ResponseComplete())
	if !b.turnStarted.IsZero() {
		metrics.TurnDuration.Observe(time.Since(b.turnStarted).Seconds())
		b.turnStarted = time.Time{}
	}
	if b.phase == PhaseModelSpeaking || b.phase == PhaseAwaitingModel {
		b.phase = PhaseIdle
	}
}

// onAssessmentDone sequences report delivery: the client-visible report goes
// out first, then persistence, then the attempt to have the model speak the
// summary. A failure speaking the summary never invalidates the delivered
// report.
func (b *Bridge) onAssessmentDone(ev internalEvent) {
	b.clearTasks()
	durationMs := float64(time.Since(ev.started).Milliseconds())

	if ev.err != nil {
		if errors.Is(ev.err, context.Canceled) {
			return
		}
		slog.Error("assessment failed", "session_id", b.cfg.ID, "error", ev.err)
		metrics.Errors.WithLabelValues("assessment", "generate").Inc()
		b.cfg.Tracer.RecordAssessment("", "", durationMs, "error")
		b.send(protocol.Error("assessment failed: " + ev.err.Error()))
		b.phase = PhaseTerminated
		return
	}

	report := ev.report
	summary := assess.VerbalSummary(report)

	b.send(protocol.AssessmentComplete(report, summary))
	b.cfg.Tracer.RecordAssessment(report.ProficiencyLevel, report.CeilingPhase, durationMs, "ok")
	slog.Info("assessment delivered", "session_id", b.cfg.ID, "level", report.ProficiencyLevel, "duration_ms", durationMs)

	if b.cfg.Records != nil {
		rec := store.Record{
			SessionID:     b.cfg.ID,
			CreatedAt:     time.Now().UTC(),
			Report:        report,
			VerbalSummary: summary,
		}
		if err := b.cfg.Records.Save(rec); err != nil {
			slog.Error("report persist failed", "session_id", b.cfg.ID, "error", err)
		}
	}

	// Pre-announce the exact summary text, then ask the model to speak it.
	b.send(protocol.AITranscript(summary))
	b.recordLine("interviewer", summary)
	err := b.cfg.Upstream.CreateResponse("Read the following assessment summary aloud exactly as written, in a warm, encouraging tone: " + summary)
	if err != nil {
		slog.Error("summary speech failed", "session_id", b.cfg.ID, "error", err)
		b.send(protocol.Error("could not speak the summary, your report is above"))
	}

	b.phase = PhaseTerminated
}

// failUpstream reports an unrecoverable upstream send failure and terminates
// the session.
func (b *Bridge) failUpstream(op string, err error) {
	slog.Error("upstream send failed", "session_id", b.cfg.ID, "op", op, "error", err)
	metrics.Errors.WithLabelValues("upstream", "send").Inc()
	b.send(protocol.Error("interview connection lost"))
	b.phase = PhaseTerminated
	b.cancelRun()
}

func (b *Bridge) clearTasks() {
	b.taskMu.Lock()
	b.keepalive = nil
	b.assessment = nil
	b.taskMu.Unlock()
}

// CancelKeepalive cancels the keepalive task, if any, and awaits its
// acknowledgement. Used by ordered registry shutdown.
func (b *Bridge) CancelKeepalive() {
	b.taskMu.Lock()
	t := b.keepalive
	b.keepalive = nil
	b.taskMu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// CancelAssessment cancels the assessment task, if any, and awaits its
// acknowledgement.
func (b *Bridge) CancelAssessment() {
	b.taskMu.Lock()
	t := b.assessment
	b.assessment = nil
	b.taskMu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// CloseUpstream closes the model connection, unblocking its read loop.
func (b *Bridge) CloseUpstream() {
	if err := b.cfg.Upstream.Close(); err != nil {
		slog.Debug("upstream close", "session_id", b.cfg.ID, "error", err)
	}
}

// CloseClient closes the participant connection, unblocking its read loop.
func (b *Bridge) CloseClient() {
	if err := b.cfg.Client.Close(); err != nil {
		slog.Debug("client close", "session_id", b.cfg.ID, "error", err)
	}
}
