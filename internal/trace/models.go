package trace

import "time"

// Session represents one interview session.
type Session struct {
	ID        string     `json:"id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count,omitempty"`
}

// Turn is one transcript line (participant utterance or model response).
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Assessment is the recorded outcome of a report-generation run.
type Assessment struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	ProficiencyLevel string    `json:"proficiency_level,omitempty"`
	CeilingPhase     string    `json:"ceiling_phase,omitempty"`
	DurationMs       float64   `json:"duration_ms"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}
