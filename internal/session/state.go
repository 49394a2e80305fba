package session

// Phase is the per-session turn-taking state. At most one of Recording,
// ModelSpeaking, or Assessing holds at any instant; turns strictly alternate.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseAwaitingModel
	PhaseModelSpeaking
	PhaseAssessing
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseAwaitingModel:
		return "awaiting_model"
	case PhaseModelSpeaking:
		return "model_speaking"
	case PhaseAssessing:
		return "assessing"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// CanStartCapture reports whether a start-capture request is accepted in this
// phase. Recording while the model is speaking or after the assessment branch
// has begun is rejected.
func (p Phase) CanStartCapture() bool {
	return p == PhaseIdle
}

// Terminal reports whether the interview loop is over for this session.
func (p Phase) Terminal() bool {
	return p == PhaseAssessing || p == PhaseTerminated
}
