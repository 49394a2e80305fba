package upstream

// Inbound event types from the realtime model.
const (
	EventSessionCreated       = "session.created"
	EventSessionUpdated       = "session.updated"
	EventAudioDelta           = "response.audio.delta"
	EventAudioTranscriptDelta = "response.audio_transcript.delta"
	EventAudioTranscriptDone  = "response.audio_transcript.done"
	EventInputTranscript      = "conversation.item.input_audio_transcription.completed"
	EventFunctionCallArgsDone = "response.function_call_arguments.done"
	EventOutputItemDone       = "response.output_item.done"
	EventResponseDone         = "response.done"
	EventError                = "error"
)

// Event is one inbound message from the realtime model. Fields are populated
// per event type; unknown types carry only Type.
type Event struct {
	Type       string     `json:"type"`
	Delta      string     `json:"delta,omitempty"`      // audio (base64) or transcript fragment
	Transcript string     `json:"transcript,omitempty"` // completed transcripts
	CallID     string     `json:"call_id,omitempty"`    // function call events
	Name       string     `json:"name,omitempty"`       // function name
	Arguments  string     `json:"arguments,omitempty"`  // function arguments, raw JSON
	Item       *Item      `json:"item,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// Item is a conversation item attached to output events.
type Item struct {
	Type      string `json:"type,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ErrorInfo is the payload of an upstream error event.
type ErrorInfo struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Tool declares one function the model may invoke.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Transcription selects the input transcription model.
type Transcription struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection. A nil value
// serializes as null, which disables it; turns are committed manually.
type TurnDetection struct {
	Type string `json:"type"`
}

// SessionConfig is the payload of the initial session.update.
type SessionConfig struct {
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	Tools                   []Tool         `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
}
