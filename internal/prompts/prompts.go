// Package prompts holds the interview instructions and guidance text served
// to the upstream model. Embedded at build time, loaded once, read-only after
// startup.
package prompts

import (
	"strings"

	_ "embed"
)

//go:embed resources/interview_guideline.txt
var rawGuideline string

//go:embed resources/assessment_rubric.txt
var rawRubric string

// InterviewInstructions is the system prompt for the live interviewer.
const InterviewInstructions = `You are a friendly, casual voice interviewer. Your goal is to conduct a short voice-based interview, under five minutes, to determine the participant's CEFR proficiency level in the target language.

Before your first response to the participant, you MUST call the interview_guidance tool to load the interview guideline text. Do not speak until you have called the tool and received its output. Use the returned guidance as the source of interview rules for the rest of the session.

CRITICAL ENDING INSTRUCTION:
After you wrap up the interview and say goodbye, you MUST call the trigger_assessment function to hand the session over to the examiner. The function call is mandatory; the session will not end automatically without it.`

// InterviewGuidance returns the normalized interview guideline text answered
// to the model's interview_guidance tool call.
func InterviewGuidance() string {
	return normalize(rawGuideline)
}

// AssessmentRubric returns the scoring rubric given to the examiner agent.
func AssessmentRubric() string {
	return normalize(rawRubric)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
