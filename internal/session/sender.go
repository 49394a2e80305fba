package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/speaklevel/interview-gateway/internal/protocol"
)

// ClientConn is the participant-facing WebSocket connection.
type ClientConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// newSender returns a mutex-guarded send function so the event loop and
// background tasks can write to the client without interleaving frames.
func newSender(conn ClientConn) func(protocol.ServerMessage) {
	var mu sync.Mutex
	return func(msg protocol.ServerMessage) {
		mu.Lock()
		defer mu.Unlock()

		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Error("write client message", "type", msg.Type, "error", err)
		}
	}
}
