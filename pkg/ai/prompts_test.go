package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func feedbackRequest(verdict string) FeedbackRequest {
	return FeedbackRequest{
		Verdict:          verdict,
		Language:         "python",
		ProblemStatement: "Print the sum of two numbers.",
		Source:           "print(a + b)",
		ExpectedOutput:   "4",
		ActualOutput:     "5",
		ErrorMessage:     "off by one",
	}
}

func TestBuildPromptSelectsVerdictBranch(t *testing.T) {
	tests := []struct {
		verdict  string
		contains string
	}{
		{"accepted", "passed all test cases"},
		{"error", "runtime or compile error"},
		{"wrong_answer", "produced wrong output"},
	}
	for _, tc := range tests {
		t.Run(tc.verdict, func(t *testing.T) {
			prompt := BuildPrompt(feedbackRequest(tc.verdict))
			require.Contains(t, prompt, tc.contains)
			require.Contains(t, prompt, "## Problem")
			require.Contains(t, prompt, "## Student's Code")
		})
	}
}

func TestBuildPromptNeverRevealsSolution(t *testing.T) {
	require.Contains(t, systemPrompt, "Never provide corrected code")

	require.Contains(t, BuildPrompt(feedbackRequest("wrong_answer")), "Do not reveal the correct solution")
	require.Contains(t, BuildPrompt(feedbackRequest("error")), "Do not hand them the fixed code")
}

func TestBuildPromptOmitsOutputsForAcceptedRuns(t *testing.T) {
	prompt := BuildPrompt(feedbackRequest("accepted"))
	require.NotContains(t, prompt, "## Expected Output")
	require.NotContains(t, prompt, "## Actual Output")
	require.NotContains(t, prompt, "## Error")
}

func TestBuildPromptIncludesOutputsForFailedRuns(t *testing.T) {
	prompt := BuildPrompt(feedbackRequest("wrong_answer"))
	require.Contains(t, prompt, "## Expected Output")
	require.Contains(t, prompt, "## Actual Output")
	require.Contains(t, prompt, "## Error\n```\noff by one")
}

func TestBuildPromptTruncatesOversizedSource(t *testing.T) {
	req := feedbackRequest("accepted")
	req.Source = strings.Repeat("x", maxSourceLength+100)

	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "[truncated]")
	require.NotContains(t, prompt, strings.Repeat("x", maxSourceLength+1))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 3))
	require.Equal(t, "ab\n... [truncated]", truncate("abcd", 2))

	// A cut inside a multi-byte rune backs off to the rune boundary.
	got := truncate("aé", 2)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "a\n... [truncated]", got)
}
