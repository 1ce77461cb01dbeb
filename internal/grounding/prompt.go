package grounding

import (
	"strings"

	"github.com/dwizi/roster-assist/internal/shifts"
)

const (
	ScheduleSectionStart = "=== Schedule Context ==="
	ScheduleSectionEnd   = "=== End Schedule Context ==="
	PolicySectionStart   = "=== Policy Context ==="
	PolicySectionEnd     = "=== End Policy Context ==="
	emptyPolicySection   = "No relevant policy passages were found."
)

const groundingInstruction = `You are a helpful scheduling assistant for a shift supervisor.
Answer the question using ONLY the schedule and policy context below. Do not use outside knowledge and do not make assumptions.
If the context does not contain the answer, say clearly that the information is not available.`

// BuildPrompt renders the grounding instruction, both context sections, the
// question and the change-list output contract, in that order.
func BuildPrompt(calendarContext, policyContext, question string) string {
	calendarContext = strings.TrimSpace(calendarContext)
	policyContext = strings.TrimSpace(policyContext)
	if policyContext == "" {
		policyContext = emptyPolicySection
	}

	sections := []string{
		groundingInstruction,
		ScheduleSectionStart + "\n" + calendarContext + "\n" + ScheduleSectionEnd,
		PolicySectionStart + "\n" + policyContext + "\n" + PolicySectionEnd,
		"Question:\n" + strings.TrimSpace(question),
		outputContract(),
		"Answer:",
	}
	return strings.Join(sections, "\n\n")
}

func outputContract() string {
	return `Schedule changes:
Only when the supervisor approves a schedule change, include exactly one JSON array in your answer in this form:
[{"employee": "<full name>", "date": "YYYY-MM-DD", "shift_type": "` + strings.Join(shifts.Names(), "|") + `"}]
Use only employee names that appear in the ` + strings.Trim(CountsJSONDelimiter, "= ") + ` data or the schedule context.
Do not use square brackets anywhere else in your answer.`
}
