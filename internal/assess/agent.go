package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/speaklevel/interview-gateway/internal/metrics"
)

const systemPrompt = `### IDENTITY
You are a Senior ESL Examiner specialized in Semi-Structured Oral Interviews. Your goal is to produce a predictable, data-driven proficiency report.

### TASK SEQUENCE
1. READ the scoring rubric below.
2. ANALYZE the transcript to locate the "Linguistic Ceiling" (where did the participant stop being comfortable?).
3. GENERATE a structured report based on the evidence found.

### STRICT EVALUATION RULES
- The "Evidence-First" Rule: you are forbidden from making a claim without a direct transcript quote.
- The Coding Analogy Rule: use coding analogies (C++, Java, or Python) to explain linguistic gaps.
- The Global vs. Local Check: prioritize identifying global errors that break communication.

### OUTPUT
Respond with a single JSON object and nothing else, matching exactly this shape:
{"proficiency_level": "...", "ceiling_phase": "Warm-up|Level-up|Probe", "ceiling_analysis": "...", "domain_analyses": [{"domain": "Fluency|Grammar|Lexical|Phonology|Coherence", "rating": 1, "observation": "...", "evidence": "..."}], "starting_module": "...", "logic_errors_to_debug": ["...", "..."], "optimization_strategy": "..."}`

// Generator produces proficiency reports from interview transcripts via the
// examiner agent. Treated by callers as an opaque, potentially slow call.
type Generator struct {
	model     string
	maxTokens int
	rubric    string
	runner    agents.Runner
}

// NewGenerator creates a report generator backed by the given model. rubric is
// appended to the examiner's instructions.
func NewGenerator(model string, maxTokens int, rubric string) *Generator {
	return &Generator{
		model:     model,
		maxTokens: maxTokens,
		rubric:    rubric,
		runner: agents.Runner{Config: agents.RunConfig{
			MaxTurns:        1,
			TracingDisabled: true,
		}},
	}
}

// Generate runs the examiner over the transcript and returns the structured
// report. Cancellation of ctx aborts the run and propagates.
func (g *Generator) Generate(ctx context.Context, transcript []TranscriptEntry) (*Report, error) {
	instructions := systemPrompt
	if g.rubric != "" {
		instructions += "\n\n### SCORING RUBRIC\n" + g.rubric
	}

	agent := agents.New("examiner").
		WithInstructions(instructions).
		WithModel(g.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens:   param.NewOpt(int64(g.maxTokens)),
			Temperature: param.NewOpt(0.3),
		})

	input := "Please analyze this interview transcript and provide a comprehensive proficiency assessment:\n\n" +
		FormatTranscript(transcript)

	start := time.Now()
	events, errCh, err := g.runner.RunStreamedChan(ctx, agent, input)
	if err != nil {
		return nil, fmt.Errorf("assessment run start: %w", err)
	}

	var buf strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok {
			continue
		}
		if raw.Data.Type == "response.output_text.delta" {
			buf.WriteString(raw.Data.Delta)
		}
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, fmt.Errorf("assessment run: %w", streamErr)
	}

	report, err := ParseReport(buf.String())
	if err != nil {
		return nil, err
	}

	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// FormatTranscript renders the conversation for the examiner.
func FormatTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	b.WriteString("=== INTERVIEW TRANSCRIPT ===\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}
	b.WriteString("\n=== END TRANSCRIPT ===")
	return b.String()
}

// ParseReport extracts the JSON report from model output, tolerating
// surrounding prose or markdown fences.
func ParseReport(output string) (*Report, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("parse report: no JSON object in output")
	}
	var report Report
	if err := json.Unmarshal([]byte(output[start:end+1]), &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if report.ProficiencyLevel == "" {
		return nil, fmt.Errorf("parse report: missing proficiency_level")
	}
	return &report, nil
}
