// Package ws upgrades participant connections and hands them to the session
// bridge.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/speaklevel/interview-gateway/internal/prompts"
	"github.com/speaklevel/interview-gateway/internal/session"
	"github.com/speaklevel/interview-gateway/internal/trace"
	"github.com/speaklevel/interview-gateway/internal/upstream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared backends for all interview sessions.
type HandlerConfig struct {
	Registry      *session.Registry
	Reporter      session.Reporter
	Records       session.RecordStore
	TraceStore    *trace.Store // optional
	Upstream      upstream.Config
	MaxConcurrent int

	MinUtterance    time.Duration
	MaxUtterance    time.Duration
	DrainTimeout    time.Duration
	KeepalivePeriod time.Duration
}

// Handler manages WebSocket interview sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with shared backends and a
// concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the interview session.
// Returns 503 at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := uuid.NewString()

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	up, err := upstream.Dial(dialCtx, h.cfg.Upstream)
	cancelDial()
	if err != nil {
		slog.Error("upstream dial failed", "session_id", sessionID, "error", err)
		return
	}
	defer up.Close()

	var tracer *trace.Tracer
	if h.cfg.TraceStore != nil {
		metadata, _ := json.Marshal(map[string]string{
			"model": h.cfg.Upstream.Model,
			"voice": h.cfg.Upstream.Voice,
		})
		tracer = trace.NewTracer(h.cfg.TraceStore, sessionID, string(metadata))
		defer tracer.Close()
	}

	bridge := session.NewBridge(session.Config{
		ID:              sessionID,
		Client:          conn,
		Upstream:        up,
		Reporter:        h.cfg.Reporter,
		Records:         h.cfg.Records,
		Tracer:          tracer,
		Instructions:    prompts.InterviewInstructions,
		Guidance:        prompts.InterviewGuidance(),
		Voice:           h.cfg.Upstream.Voice,
		MinUtterance:    h.cfg.MinUtterance,
		MaxUtterance:    h.cfg.MaxUtterance,
		DrainTimeout:    h.cfg.DrainTimeout,
		KeepalivePeriod: h.cfg.KeepalivePeriod,
	})

	h.cfg.Registry.Add(bridge)
	defer h.cfg.Registry.Remove(sessionID)

	if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Info("session closed", "session_id", sessionID, "error", err)
	}
}
