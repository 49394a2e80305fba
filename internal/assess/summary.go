package assess

import (
	"fmt"
	"sort"
	"strings"
)

// VerbalSummary renders the report as a conversational summary suitable for
// speech synthesis. The exact text is also forwarded to the client as display
// text before audio is requested.
func VerbalSummary(r *Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Based on our conversation, I've assessed your proficiency at %s level.", r.ProficiencyLevel))
	parts = append(parts, fmt.Sprintf("You performed well during the %s phase. %s", r.CeilingPhase, r.CeilingAnalysis))

	if len(r.DomainAnalyses) > 0 {
		parts = append(parts, "Let me break down the key areas:")

		domains := make([]DomainAnalysis, len(r.DomainAnalyses))
		copy(domains, r.DomainAnalyses)
		sort.SliceStable(domains, func(i, j int) bool { return domains[i].Rating > domains[j].Rating })
		strongest := domains[0]
		weakest := domains[len(domains)-1]

		parts = append(parts, fmt.Sprintf("Your strongest area is %s with a rating of %d out of 5. %s",
			strings.ToLower(strongest.Domain), strongest.Rating, strongest.Observation))
		parts = append(parts, fmt.Sprintf("An area to focus on is %s, rated at %d out of 5. %s",
			strings.ToLower(weakest.Domain), weakest.Rating, weakest.Observation))
	}

	parts = append(parts, fmt.Sprintf("I recommend starting with the %s module.", r.StartingModule))
	if len(r.LogicErrorsToDebug) > 0 {
		parts = append(parts, "The top patterns to work on are:")
		for i, pattern := range r.LogicErrorsToDebug {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, pattern))
		}
	}
	parts = append(parts, fmt.Sprintf("For practice, I suggest this exercise: %s", r.OptimizationStrategy))
	parts = append(parts, "You're making good progress! Keep practicing regularly.")

	return strings.Join(parts, " ")
}
