package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Content bounds keep prompts inside provider token limits.
const (
	maxSourceLength    = 30000
	maxOutputLength    = 10000
	maxStatementLength = 10000
)

const systemPrompt = "You are an expert programming tutor reviewing a student's graded code submission. " +
	"Be supportive and educational. Never provide corrected code or reveal the solution; " +
	"guide the student towards understanding instead."

// BuildPrompt renders the verdict-specific user prompt. Accepted
// submissions get a code review, wrong answers get a logic-flaw
// explanation and errors get a diagnostic walkthrough.
func BuildPrompt(req FeedbackRequest) string {
	statement := truncate(req.ProblemStatement, maxStatementLength)
	source := truncate(req.Source, maxSourceLength)

	var b strings.Builder
	switch req.Verdict {
	case "accepted":
		b.WriteString("The student's solution passed all test cases. Review the code for readability, efficiency and ")
		b.WriteString(req.Language)
		b.WriteString("-specific best practices. Start by congratulating them, then give concise, actionable review notes.\n")
	case "error":
		b.WriteString("The student's code failed with a runtime or compile error. Explain what the error message means ")
		b.WriteString("in beginner-friendly terms, point at the likely cause, and walk through how to debug it. ")
		b.WriteString("Do not hand them the fixed code.\n")
	default:
		b.WriteString("The student's code ran but produced wrong output for at least one test case. Compare the expected ")
		b.WriteString("and actual output, explain the logic flaw conceptually, and ask guiding questions. ")
		b.WriteString("Do not reveal the correct solution.\n")
	}

	fmt.Fprintf(&b, "\n## Problem\n%s\n", statement)
	fmt.Fprintf(&b, "\n## Language\n%s\n", req.Language)
	fmt.Fprintf(&b, "\n## Student's Code\n```%s\n%s\n```\n", req.Language, source)

	if req.Verdict != "accepted" {
		if req.ExpectedOutput != "" {
			fmt.Fprintf(&b, "\n## Expected Output\n```\n%s\n```\n", truncate(req.ExpectedOutput, maxOutputLength))
		}
		if req.ActualOutput != "" {
			fmt.Fprintf(&b, "\n## Actual Output\n```\n%s\n```\n", truncate(req.ActualOutput, maxOutputLength))
		}
		if req.ErrorMessage != "" {
			fmt.Fprintf(&b, "\n## Error\n```\n%s\n```\n", truncate(req.ErrorMessage, maxOutputLength))
		}
	}

	return b.String()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n... [truncated]"
}
