// Package upstream is the WebSocket client for the realtime conversational
// speech model. One Client serves exactly one interview session.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Config locates and authenticates the realtime endpoint.
type Config struct {
	URL    string // e.g. wss://api.openai.com/v1/realtime
	Model  string
	APIKey string
	Voice  string
}

// Client is a connection to the realtime model. Writes are serialized; reads
// belong to a single reader goroutine.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens the realtime connection with bearer auth.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	url := cfg.URL + "?model=" + cfg.Model
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an already-established connection. Used by tests.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Configure sends the initial session.update.
func (c *Client) Configure(cfg SessionConfig) error {
	if err := c.send(map[string]any{"type": "session.update", "session": cfg}); err != nil {
		return fmt.Errorf("session.update: %w", err)
	}
	return nil
}

// AppendAudio appends one base64 PCM16 chunk to the input buffer.
func (c *Client) AppendAudio(wireFrame string) error {
	if err := c.send(map[string]any{"type": "input_audio_buffer.append", "audio": wireFrame}); err != nil {
		return fmt.Errorf("input_audio_buffer.append: %w", err)
	}
	return nil
}

// CommitAudio closes the current input turn.
func (c *Client) CommitAudio() error {
	if err := c.send(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
		return fmt.Errorf("input_audio_buffer.commit: %w", err)
	}
	return nil
}

// ClearInput discards any uncommitted input audio. Also doubles as a cheap
// keepalive while report generation runs.
func (c *Client) ClearInput() error {
	if err := c.send(map[string]any{"type": "input_audio_buffer.clear"}); err != nil {
		return fmt.Errorf("input_audio_buffer.clear: %w", err)
	}
	return nil
}

// CreateResponse asks the model to produce the next turn. instructions may be
// empty to continue the conversation as configured.
func (c *Client) CreateResponse(instructions string) error {
	response := map[string]any{"modalities": []string{"text", "audio"}}
	if instructions != "" {
		response["instructions"] = instructions
	}
	if err := c.send(map[string]any{"type": "response.create", "response": response}); err != nil {
		return fmt.Errorf("response.create: %w", err)
	}
	return nil
}

// SendToolOutput returns a function call result to the model and requests a
// follow-up response.
func (c *Client) SendToolOutput(callID, output string) error {
	if callID == "" {
		return fmt.Errorf("tool output: missing call_id")
	}
	err := c.send(map[string]any{
		"type": "conversation.item.create",
		"item": Item{Type: "function_call_output", CallID: callID, Output: output},
	})
	if err != nil {
		return fmt.Errorf("conversation.item.create: %w", err)
	}
	return c.CreateResponse("")
}

// ReadEvent blocks for the next inbound event. Returns the read error when
// the connection drops.
func (c *Client) ReadEvent() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, fmt.Errorf("read realtime event: %w", err)
	}
	var ev Event
	if err = json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode realtime event: %w", err)
	}
	return ev, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
