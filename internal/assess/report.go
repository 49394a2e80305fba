// Package assess generates the structured proficiency report from a finished
// interview transcript and renders its spoken summary.
package assess

// DomainAnalysis is the analytic breakdown for one linguistic domain.
type DomainAnalysis struct {
	Domain      string `json:"domain"` // Fluency | Grammar | Lexical | Phonology | Coherence
	Rating      int    `json:"rating"` // 1-5 scale
	Observation string `json:"observation"`
	Evidence    string `json:"evidence"` // direct quote from the participant transcript
}

// Report is the structured proficiency assessment delivered to the client.
type Report struct {
	ProficiencyLevel     string           `json:"proficiency_level"` // CEFR/ACTFL level
	CeilingPhase         string           `json:"ceiling_phase"`     // Warm-up, Level-up, or Probe
	CeilingAnalysis      string           `json:"ceiling_analysis"`
	DomainAnalyses       []DomainAnalysis `json:"domain_analyses"`
	StartingModule       string           `json:"starting_module"`
	LogicErrorsToDebug   []string         `json:"logic_errors_to_debug"`
	OptimizationStrategy string           `json:"optimization_strategy"`
}

// TranscriptEntry is one line of the interview transcript fed to the examiner.
type TranscriptEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
