// Package protocol defines the JSON messages exchanged with the participant
// client over the WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/speaklevel/interview-gateway/internal/assess"
)

// Client->server message types.
const (
	TypeStartCapture = "start_capture"
	TypeAudio        = "audio"
	TypeStopCapture  = "stop_capture"
	TypeSubmitSurvey = "submit_survey"
	TypePing         = "ping"
	TypeEndSession   = "end_session"
)

// Server->client message types.
const (
	TypeSessionCreated      = "session_created"
	TypeSessionReady        = "session_ready"
	TypeSetupComplete       = "setup_complete"
	TypeUserTranscript      = "user_transcript"
	TypeAITranscript        = "ai_transcript"
	TypeAIAudio             = "ai_audio"
	TypeResponseComplete    = "response_complete"
	TypeAssessmentTriggered = "assessment_triggered"
	TypeAssessmentProgress  = "assessment_progress"
	TypeAssessmentComplete  = "assessment_complete"
	TypeKeepalive           = "keepalive"
	TypePong                = "pong"
	TypeError               = "error"
)

// ClientMessage is any inbound message from the participant client.
type ClientMessage struct {
	Type     string `json:"type"`
	Audio    string `json:"audio,omitempty"`    // base64 PCM16 chunk, type "audio"
	Rating   int    `json:"rating,omitempty"`   // type "submit_survey"
	Comments string `json:"comments,omitempty"` // type "submit_survey"
}

// DecodeClient parses one inbound client message.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("decode client message: missing type")
	}
	return msg, nil
}

// ServerMessage is any outbound message to the participant client.
type ServerMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Text      string         `json:"text,omitempty"`
	Audio     string         `json:"audio,omitempty"` // base64 PCM16 frame
	Message   string         `json:"message,omitempty"`
	Report    *assess.Report `json:"report,omitempty"`
	Summary   string         `json:"summary,omitempty"`
}

func SessionCreated(id string) ServerMessage {
	return ServerMessage{Type: TypeSessionCreated, SessionID: id}
}

func SessionReady() ServerMessage {
	return ServerMessage{Type: TypeSessionReady}
}

func SetupComplete() ServerMessage {
	return ServerMessage{Type: TypeSetupComplete}
}

func UserTranscript(text string) ServerMessage {
	return ServerMessage{Type: TypeUserTranscript, Text: text}
}

func AITranscript(text string) ServerMessage {
	return ServerMessage{Type: TypeAITranscript, Text: text}
}

func AIAudio(frame string) ServerMessage {
	return ServerMessage{Type: TypeAIAudio, Audio: frame}
}

func ResponseComplete() ServerMessage {
	return ServerMessage{Type: TypeResponseComplete}
}

func AssessmentTriggered() ServerMessage {
	return ServerMessage{Type: TypeAssessmentTriggered}
}

func AssessmentProgress(message string) ServerMessage {
	return ServerMessage{Type: TypeAssessmentProgress, Message: message}
}

func AssessmentComplete(report *assess.Report, summary string) ServerMessage {
	return ServerMessage{Type: TypeAssessmentComplete, Report: report, Summary: summary}
}

func Keepalive() ServerMessage {
	return ServerMessage{Type: TypeKeepalive}
}

func Pong() ServerMessage {
	return ServerMessage{Type: TypePong}
}

func Error(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}
